package monitoring

import (
	"go.uber.org/atomic"
)

type ProcessorErrors struct {
	Processing atomic.Uint64 `json:"processing"`
	DbError    atomic.Uint64 `json:"db_error"`
}

type ProcessorState struct {
	EventsProcessed    atomic.Uint64 `json:"events_processed"`
	EventsFiltered     atomic.Uint64 `json:"events_filtered"`
	LastBlockHeight    atomic.Int64  `json:"last_block_height"`
	TotalCapacityBytes atomic.Uint64 `json:"total_capacity_bytes"`
}

type ProcessorReport struct {
	State  ProcessorState  `json:"state"`
	Errors ProcessorErrors `json:"errors"`
}

type JobsErrors struct {
	Failed       atomic.Uint64 `json:"failed"`
	SizeExceeded atomic.Uint64 `json:"size_exceeded"`
}

type JobsState struct {
	Started   atomic.Uint64 `json:"started"`
	Succeeded atomic.Uint64 `json:"succeeded"`
	Retries   atomic.Uint64 `json:"retries"`
}

type JobsReport struct {
	State  JobsState  `json:"state"`
	Errors JobsErrors `json:"errors"`
}

type GcErrors struct {
	Unpin   atomic.Uint64 `json:"unpin"`
	DbError atomic.Uint64 `json:"db_error"`
}

type GcState struct {
	AgreementsMarked    atomic.Uint64 `json:"agreements_marked"`
	AgreementsReprieved atomic.Uint64 `json:"agreements_reprieved"`
	AgreementsExpired   atomic.Uint64 `json:"agreements_expired"`
	HintsSwept          atomic.Uint64 `json:"hints_swept"`
}

type GcReport struct {
	State  GcState  `json:"state"`
	Errors GcErrors `json:"errors"`
}

type CommsErrors struct {
	Publish atomic.Uint64 `json:"publish"`
	Inbound atomic.Uint64 `json:"inbound"`
}

type CommsState struct {
	NotificationsPublished atomic.Uint64 `json:"notifications_published"`
	NotificationsEvicted   atomic.Uint64 `json:"notifications_evicted"`
	MessagesReplayed       atomic.Uint64 `json:"messages_replayed"`
}

type CommsReport struct {
	State  CommsState  `json:"state"`
	Errors CommsErrors `json:"errors"`
}

type Report struct {
	StartTimestamp atomic.Int64 `json:"start_timestamp"`

	Processor ProcessorReport `json:"processor"`
	Jobs      JobsReport      `json:"jobs"`
	Gc        GcReport        `json:"gc"`
	Comms     CommsReport     `json:"comms"`
}
