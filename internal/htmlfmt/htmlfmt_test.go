package htmlfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		entities []Entity
		want     string
	}{
		{
			name: "plain text is escaped",
			text: "a < b & c",
			want: "a &lt; b &amp; c",
		},
		{
			name:     "bold and link",
			text:     "Hello world",
			entities: []Entity{{Type: "bold", Offset: 0, Length: 5}, {Type: "text_link", Offset: 6, Length: 5, URL: "https://example.com/?a=1&b=2"}},
			want:     `<b>Hello</b> <a href="https://example.com/?a=1&amp;b=2">world</a>`,
		},
		{
			name:     "nested spans",
			text:     "bold italic",
			entities: []Entity{{Type: "bold", Offset: 0, Length: 11}, {Type: "italic", Offset: 5, Length: 6}},
			want:     "<b>bold <i>italic</i></b>",
		},
		{
			name:     "overlapping spans are split",
			text:     "abcdef",
			entities: []Entity{{Type: "bold", Offset: 0, Length: 4}, {Type: "italic", Offset: 2, Length: 4}},
			want:     "<b>ab<i>cd</i></b><i>ef</i>",
		},
		{
			name:     "offsets count utf16 units",
			text:     "😀 hi",
			entities: []Entity{{Type: "underline", Offset: 3, Length: 2}},
			want:     "😀 <u>hi</u>",
		},
		{
			name:     "cyrillic",
			text:     "Привет мир",
			entities: []Entity{{Type: "strikethrough", Offset: 7, Length: 3}},
			want:     "Привет <s>мир</s>",
		},
		{
			name:     "pre with language and unsupported entity",
			text:     "x := 1 @user",
			entities: []Entity{{Type: "pre", Offset: 0, Length: 6, Language: "go"}, {Type: "mention", Offset: 7, Length: 5}},
			want:     `<pre><code class="language-go">x := 1</code></pre> @user`,
		},
		{
			name:     "entity past end is clamped",
			text:     "abc",
			entities: []Entity{{Type: "code", Offset: 1, Length: 10}},
			want:     "a<code>bc</code>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FromEntities(tt.text, tt.entities))
		})
	}
}

func TestMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold italic strike", "*b* _i_ ~s~", "<b>b</b> <i>i</i> <s>s</s>"},
		{"code is escaped and untouched", "use `a*b*c` now", "use <code>a*b*c</code> now"},
		{"code block before inline", "```x < y```", "<pre>x &lt; y</pre>"},
		{"link", "[site](https://t.me/my_bot_name)", `<a href="https://t.me/my_bot_name">site</a>`},
		{"bare url keeps underscores", "see https://t.me/some_bot_here ok", "see https://t.me/some_bot_here ok"},
		{"snake_case words are not italic", "my_var_name", "my_var_name"},
		{"header", "# Title\nbody", "<u>Title</u>\nbody"},
		{"raw html passes through", "<b>already</b>", "<b>already</b>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Markdown(tt.in))
		})
	}
}
