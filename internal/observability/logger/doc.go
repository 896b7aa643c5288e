// Package logger wraps a global zap logger for the login service.
//
// Every HTTP request gets a scope (see ToContext) carrying request_id, method
// and path. Handlers and services log through From(ctx) and add what they
// learn about the attempt with Annotate, so the single "request completed"
// line written by the logging middleware also says which provider was used,
// how the login ended and for which user:
//
//	logger.Annotate(ctx, logger.Provider("google"), logger.Outcome("logged_in"))
//
// E-mails never reach the output in clear; use Email, which masks them.
package logger
