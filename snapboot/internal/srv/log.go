package srv

import "github.com/ethfleet/snapboot/snapboot/common/logging"

func WorkerLogger(logger logging.Logger, worker Worker) logging.Logger {
	return logger.With().Str(logging.FieldWorker, worker.Name()).Logger()
}
