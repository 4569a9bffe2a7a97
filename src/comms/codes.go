package comms

// Code identifies the kind of a broadcast or inbound message.
type Code string

const (
	CodeAgreementNew     Code = "agreement.new"
	CodeAgreementStopped Code = "agreement.stopped"
	CodeAgreementExpired Code = "agreement.expired"

	CodeJobStarted   Code = "job.started"
	CodeJobSucceeded Code = "job.succeeded"
	CodeJobRetrying  Code = "job.retrying"
	CodeJobErrored   Code = "job.errored"
	CodeSizeExceeded Code = "job.sizeExceeded"

	CodeGeneralError Code = "error.general"

	// Inbound only
	CodePeerMultiaddr Code = "peer.multiaddr"
	CodeResendRequest Code = "replay.request"
)

// Payload keys understood across messages
const (
	KeyAgreementReference = "agreementReference"
	KeyMultiaddrs         = "multiaddrs"
	KeyRequester          = "requester"
	KeyCode               = "code"
)
