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
	Gateway    GatewayConfig    `json:"gateway"`
	Resilience ResilienceConfig `json:"resilience"`
	Log        LogConfig        `json:"log"`
}

type GatewayConfig struct {
	ManifestPath string `json:"manifest_path"`
	DefaultModel string `json:"default_model"`
	Strategy     string `json:"strategy"`
}

type ResilienceConfig struct {
	MaxAttempts      int `json:"max_attempts"`
	FailureThreshold int `json:"failure_threshold"`
	CooldownSeconds  int `json:"cooldown_seconds"`
}

type LogConfig struct {
	Level string `json:"level"`
}

var cfg *config.Config[RuntimeConfig]

func main() {
	var err error
	cfg, err = config.Load[RuntimeConfig]("./config.json")
	if err != nil {
		log.Fatal(err)
	}

	cfg.OnChange(func(old, new RuntimeConfig) {
		if config.Changed(old.Gateway, new.Gateway) {
			log.Printf("[Gateway] 配置变更: %+v", new.Gateway)
		}
		if config.Changed(old.Resilience, new.Resilience) {
			log.Printf("[Resilience] 配置变更")
		}
		if config.Changed(old.Log, new.Log) {
			log.Printf("[Logger] 配置变更: %s -> %s", old.Log.Level, new.Log.Level)
		}
	})

	c := cfg.Get()
	fmt.Printf("网关: manifest=%s 默认模型=%s\n", c.Gateway.ManifestPath, c.Gateway.DefaultModel)
	fmt.Printf("弹性: 最多 %d 次尝试, 熔断阈值 %d\n", c.Resilience.MaxAttempts, c.Resilience.FailureThreshold)
	fmt.Printf("日志级别: %s\n", c.Log.Level)

	fmt.Println("\n修改 config.json 将触发回调，Ctrl+C 退出")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
