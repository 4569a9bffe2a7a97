package model

const TableState = "pinner_state"

type State struct {
	// Id always equals one
	Id int

	// Height of the last block tick that was fully processed.
	// Lets operators spot missed ranges after a restart.
	LastSeenBlockHeight int64
}

func (State) TableName() string {
	return TableState
}
