package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"storydub/internal/apiclient"
	"storydub/internal/config"
)

type commandContext struct {
	addrFlag   *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addrFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		addrFlag:   addrFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// apiAddress prefers --addr over the configured bind address.
func (c *commandContext) apiAddress() (string, error) {
	if c.addrFlag != nil {
		if addr := strings.TrimSpace(*c.addrFlag); addr != "" {
			return addr, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Paths.APIBind, nil
}

func (c *commandContext) client() (*apiclient.Client, error) {
	addr, err := c.apiAddress()
	if err != nil {
		return nil, err
	}
	token := ""
	if cfg, err := c.ensureConfig(); err == nil {
		token = cfg.Paths.APIToken
	}
	return apiclient.New(addr, apiclient.WithToken(token))
}

func (c *commandContext) withClient(fn func(*apiclient.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return wrapDialError(fn(client), client.BaseURL())
}

func wrapDialError(err error, addr string) error {
	if errors.Is(err, apiclient.ErrUnavailable) {
		return fmt.Errorf("connect to daemon: nothing is listening at %s; start the daemon with `storydub start`", addr)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
