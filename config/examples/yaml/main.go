package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	config "github.com/lgc202/ai-kit/config"
)

type RuntimeConfig struct {
	Gateway    *GatewayConfig   `mapstructure:"gateway"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Log        LogConfig        `mapstructure:"log"`
}

type GatewayConfig struct {
	ManifestPath string `mapstructure:"manifest_path"`
	DefaultModel string `mapstructure:"default_model"`
	Strategy     string `mapstructure:"strategy"`
}

type ResilienceConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	FailureThreshold int `mapstructure:"failure_threshold"`
	CooldownSeconds  int `mapstructure:"cooldown_seconds"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var cfg *config.Config[RuntimeConfig]

func main() {
	var err error
	cfg, err = config.Load("./config.yaml",
		config.WithDefaults[RuntimeConfig](map[string]any{
			"gateway.manifest_path": "./manifest.yaml",
			"gateway.default_model": "gpt-4o-mini",
			"gateway.strategy":      "failover",

			"resilience.max_attempts":      3,
			"resilience.failure_threshold": 5,
			"resilience.cooldown_seconds":  30,

			"log.level": "info",
		}),
		config.WithEnv[RuntimeConfig]("AIKIT"),
	)
	if err != nil {
		log.Fatal(err)
	}

	initGateway()
	initResilience()
	initLogger()

	c := cfg.Get()
	fmt.Printf("网关: manifest=%s 默认模型=%s 策略=%s\n", c.Gateway.ManifestPath, c.Gateway.DefaultModel, c.Gateway.Strategy)
	fmt.Printf("弹性: 最多 %d 次尝试, 熔断阈值 %d, 冷却 %ds\n", c.Resilience.MaxAttempts, c.Resilience.FailureThreshold, c.Resilience.CooldownSeconds)
	fmt.Printf("日志级别: %s\n", c.Log.Level)

	fmt.Println("\n修改 config.yaml 将触发回调，Ctrl+C 退出")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func initGateway() {
	cfg.OnChange(func(old, new RuntimeConfig) {
		if config.Changed(old.Gateway, new.Gateway) {
			log.Printf("[Gateway] 配置变更: %+v", new.Gateway)
		}
	})
}

func initResilience() {
	cfg.OnChange(func(old, new RuntimeConfig) {
		if config.Changed(old.Resilience, new.Resilience) {
			log.Printf("[Resilience] 配置变更，重建 provider 包装层...")
		}
	})
}

func initLogger() {
	cfg.OnChange(func(old, new RuntimeConfig) {
		if config.Changed(old.Log, new.Log) {
			log.Printf("[Logger] 配置变更: %s -> %s", old.Log.Level, new.Log.Level)
		}
	})
}
