// Package config loads pipekit configuration with Viper.
//
// LoadConfig reads a YAML file from the standard search paths, then a .env
// file through godotenv and finally the process environment. Environment keys
// are bound to every nested key they may address, so PIPELINE_FAILURE_POLICY
// sets pipeline.failure_policy.
//
// # Usage
//
//	var cfg MyConfig
//	err := config.LoadConfig("orders", &cfg, config.WithEnvPrefix("PIPEKIT"))
package config
