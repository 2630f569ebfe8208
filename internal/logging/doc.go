// Package logging provides a small leveled logger for the gallery server.
//
// Levels are DEBUG, INFO, WARN and ERROR, plus Fatal which exits. The level
// comes from DEBUG or LOG_LEVEL unless startup configuration calls SetLevel.
// Component loggers add a fixed "[name] " prefix so pipeline, broadcast and
// websocket output can be told apart in one stream.
package logging
