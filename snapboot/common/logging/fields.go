package logging

const (
	// FieldError can be used instead of Err(err) if you have only the error message string.
	FieldError = "err"

	FieldComponent = "component"
	FieldNetwork   = "network"

	FieldDuration = "duration"
	FieldUrl      = "url"

	FieldRpcMethod = "rpcMethod"
	FieldEndpoint  = "endpoint"
	FieldPeer      = "peer"

	FieldPhase       = "phase"
	FieldSessionId   = "sessionId"
	FieldBlockNumber = "blockNumber"
	FieldTargetBlock = "targetBlock"
	FieldLocalBlock  = "localBlock"
	FieldLag         = "lag"

	FieldSnapshotTag    = "snapshotTag"
	FieldSnapshotDigest = "snapshotDigest"
	FieldRepository     = "repository"
	FieldBytes          = "bytes"
	FieldDataDir        = "dataDir"

	FieldClientKind    = "clientKind"
	FieldClientVersion = "clientVersion"

	FieldWorker  = "worker"
	FieldElapsed = "elapsed"
)
