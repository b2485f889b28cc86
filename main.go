package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/flowkit/flowkit/app"
	"github.com/flowkit/flowkit/config"
	"github.com/flowkit/flowkit/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "flowkit", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().String("dispatcher-impl", "http", "implementation of the outbound action dispatcher")
	cmd.Flags().String("channel-endpoint", "", "endpoint messages are dispatched to")
	cmd.Flags().String("agent-endpoint", "", "endpoint producing ai agent completions")
	cmd.Flags().String("handoff-endpoint", "", "endpoint receiving agent handoff summaries")
	cmd.Flags().String("sqlite-path", "flowkit.db", "path of the contact database")
	cmd.Flags().Int("step-cap", 64, "maximum steps executed per interpreter run")
	cmd.Flags().Int("resume-tick", 1, "resume queue poll interval in seconds")
	cmd.Flags().Bool("enforce-device-scope", false, "drop trigger matches outside the flow device scope")
	cmd.Flags().String("log-level", "info", "log level")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.DispatcherType = config.DispatcherType(viper.GetString("dispatcher-impl"))
	c.cfg.ChannelEndpoint = viper.GetString("channel-endpoint")
	c.cfg.AgentEndpoint = viper.GetString("agent-endpoint")
	c.cfg.HandoffEndpoint = viper.GetString("handoff-endpoint")
	c.cfg.SqlitePath = viper.GetString("sqlite-path")
	c.cfg.StepCap = viper.GetInt("step-cap")
	c.cfg.ResumeTickSeconds = viper.GetInt("resume-tick")
	c.cfg.EnforceDeviceScope = viper.GetBool("enforce-device-scope")
	c.cfg.LogLevel = viper.GetString("log-level")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	logger.Init(c.cfg.LogLevel)
	a, err := app.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = a.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return a.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "flowkit",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
