// Package logging provides leveled logging helpers for the application.
//
// The log level is read from the DEBUG and LOG_LEVEL environment variables
// at startup and can be changed at runtime with SetLevel. Messages below
// the current level are suppressed.
package logging
