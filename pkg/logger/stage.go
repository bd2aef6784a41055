package logger

import "time"

// StageLogger provides structured logging for a pipeline stage with timing.
// Each stage of a reconciliation run opens one and closes it with Success or
// Failure so stage durations land in the logs uniformly.
type StageLogger struct {
	logger    Logger
	stage     string
	fields    Fields
	startTime time.Time
}

// NewStageLogger creates a logger scoped to one pipeline stage
func NewStageLogger(stage string, logger Logger) *StageLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	sl := &StageLogger{
		logger:    logger.WithComponent("pipeline"),
		stage:     stage,
		fields:    make(Fields),
		startTime: time.Now(),
	}

	sl.logger.WithField("stage", stage).Debug("Stage started")
	return sl
}

// WithField adds a field carried by all subsequent stage log lines
func (sl *StageLogger) WithField(key string, value interface{}) *StageLogger {
	sl.fields[key] = value
	return sl
}

// Progress logs an intermediate progress message
func (sl *StageLogger) Progress(message string, processed, total int) {
	fields := Fields{
		"stage":     sl.stage,
		"processed": processed,
	}
	if total > 0 {
		fields["total"] = total
	}
	for k, v := range sl.fields {
		fields[k] = v
	}

	sl.logger.WithFields(fields).Info(message)
}

// Warning logs a warning attributed to the stage
func (sl *StageLogger) Warning(message string) {
	fields := Fields{"stage": sl.stage}
	for k, v := range sl.fields {
		fields[k] = v
	}
	sl.logger.WithFields(fields).Warn(message)
}

// Elapsed returns the time since the stage started
func (sl *StageLogger) Elapsed() time.Duration {
	return time.Since(sl.startTime)
}

// Success closes the stage with its duration
func (sl *StageLogger) Success(message string) time.Duration {
	duration := time.Since(sl.startTime)
	fields := Fields{
		"stage":    sl.stage,
		"duration": duration.String(),
		"status":   "success",
	}
	for k, v := range sl.fields {
		fields[k] = v
	}

	sl.logger.WithFields(fields).Info(message)
	return duration
}

// Failure closes the stage with an error and its duration
func (sl *StageLogger) Failure(err error, message string) time.Duration {
	duration := time.Since(sl.startTime)
	fields := Fields{
		"stage":    sl.stage,
		"duration": duration.String(),
		"status":   "error",
	}
	for k, v := range sl.fields {
		fields[k] = v
	}

	sl.logger.WithError(err).WithFields(fields).Error(message)
	return duration
}
