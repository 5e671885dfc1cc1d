package config

type WorkerKeyStruct struct {
	PersistCheatsQueue      string
	PersistSubmissionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistCheatsQueue:      "persist_cheats_queue",
	PersistSubmissionsQueue: "persist_submissions_queue",
}
