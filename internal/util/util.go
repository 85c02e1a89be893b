package util

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LoggingError logs an error before returning it unchanged.
func LoggingError(err error) error {
	logrus.WithError(err).Error()
	return err
}

// LoggingErrorMsg wraps an error with a message, logs the result, and returns it.
func LoggingErrorMsg(err error, msg string) error {
	logrus.WithError(err).Error(SanitizeLog(msg))
	return errors.Wrap(err, msg)
}

// LoggingErrorMsgf wraps an error with a formatted message, logs the result, and returns it.
func LoggingErrorMsgf(err error, msgFormat string, args ...any) error {
	logrus.WithError(err).Errorf(SanitizeLog(msgFormat), args...)
	return errors.Wrapf(err, msgFormat, args...)
}

// LoggingNewError creates a new error from the message, logs it, and returns it.
func LoggingNewError(msg string) error {
	err := errors.New(msg)
	logrus.Error(SanitizeLog(msg))
	return err
}

// LoggingNewErrorf creates a new error from the formatted message, logs it, and returns it.
func LoggingNewErrorf(msgFormat string, args ...any) error {
	err := errors.Errorf(msgFormat, args...)
	logrus.Error(err.Error())
	return err
}

// SanitizeLog strips newlines from values destined for log output.
// https://codeql.github.com/codeql-query-help/go/go-log-injection/
func SanitizeLog(log string) string {
	escapedLog := strings.ReplaceAll(log, "\n", "")
	return strings.ReplaceAll(escapedLog, "\r", "")
}

// Is2xxResponse returns true if the given status code is a 2xx response.
func Is2xxResponse(statusCode int) bool {
	return statusCode/100 == 2
}

// Is4xxResponse returns true if the given status code is a 4xx response.
func Is4xxResponse(statusCode int) bool {
	return statusCode/100 == 4
}
