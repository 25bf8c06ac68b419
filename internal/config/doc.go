// Package config provides configuration management for the event-study tools.
// It loads configuration from multiple sources, validates it, and converts the
// engine section into the immutable eventstudy.Config.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority), after loading a .env file if present
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern EVENTSTUDY_<SECTION>_<FIELD>:
//
//	EVENTSTUDY_ENGINE_WIDTHS=1,3,5,10
//	EVENTSTUDY_ENGINE_GAP_PERIOD=10
//	EVENTSTUDY_ENGINE_WEIGHTING=value
//	EVENTSTUDY_LOGGING_LEVEL=debug
//	EVENTSTUDY_STORAGE_DATABASE_PATH=output/eventstudy.db
//
// # Configuration File
//
//	engine:
//	  widths: [1, 3, 5, 10]
//	  estimation_period: 250
//	  gap_period: 10
//	  test_methods: [market_model, market_adjusted]
//	schema:
//	  return: RET
//	  market: VWRETD
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engineCfg, err := cfg.Engine.ToEngineConfig()
package config
