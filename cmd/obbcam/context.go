package main

import (
	"strings"
	"sync"

	"github.com/teslashibe/go-obbcam/internal/config"
	"github.com/teslashibe/go-obbcam/pkg/client"
)

type commandContext struct {
	configFlag *string
	serverFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, serverFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := config.DefaultPath()
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, _, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// serverURL resolves the API address: --server, then the configured listen
// address, then the client default.
func (c *commandContext) serverURL() string {
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		return strings.TrimSpace(*c.serverFlag)
	}
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return client.DefaultBaseURL
	}
	return baseURLFromAddr(cfg.Server.Addr)
}

func (c *commandContext) client() *client.Client {
	return client.New(c.serverURL())
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// baseURLFromAddr turns a listen address into a URL a local client can dial.
func baseURLFromAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	switch {
	case addr == "":
		return client.DefaultBaseURL
	case strings.HasPrefix(addr, ":"):
		return "http://localhost" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		return "http://localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	default:
		return "http://" + addr
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
