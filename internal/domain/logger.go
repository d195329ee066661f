package domain

// Logger is the subset of the sugared zap logger used across the application.
type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}
