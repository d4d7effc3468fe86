package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if n := strings.Count(c.OtherBotsPath, TokenPlaceholder); n != 1 {
		return fmt.Errorf("other_bots_path must contain %s exactly once, found %d", TokenPlaceholder, n)
	}
	if c.MainBotPath == c.OtherBotsPath {
		return fmt.Errorf("main_bot_path and other_bots_path must differ")
	}
	if strings.ContainsAny(c.MainBotPath, "{}") {
		return fmt.Errorf("main_bot_path must not contain route parameters")
	}

	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
