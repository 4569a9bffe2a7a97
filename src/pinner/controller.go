package pinner

import (
	"github.com/blobsync/pinner/src/agreements"
	"github.com/blobsync/pinner/src/comms"
	"github.com/blobsync/pinner/src/events"
	"github.com/blobsync/pinner/src/feed"
	"github.com/blobsync/pinner/src/gc"
	"github.com/blobsync/pinner/src/hints"
	"github.com/blobsync/pinner/src/jobs"
	"github.com/blobsync/pinner/src/pins"
	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"
	"github.com/blobsync/pinner/src/utils/storage"
	"github.com/blobsync/pinner/src/utils/task"
	"github.com/blobsync/pinner/src/utils/transport"
)

type Controller struct {
	*task.Task
}

// Main class that wires the engine together.
// The feed drives the processor, the processor drives pin/unpin jobs and
// the garbage collector, everything reports through one monitor.
func NewController(config *config.Config) (self *Controller, err error) {
	self = new(Controller)

	self.Task = task.NewTask(config, "controller")

	db, err := model.NewConnection(self.Ctx, config, "pinner")
	if err != nil {
		return
	}

	monitor := monitoring.NewMonitor()

	server := monitoring.NewServer(config).
		WithMonitor(monitor)

	agreementStore := agreements.NewStore(db)
	hintStore := hints.NewStore(db)
	notificationLog := comms.NewNotificationLog(db)
	jobStore := jobs.NewJobStore(db)
	stateStore := events.NewGormStateStore(db)

	redisTransport := transport.NewRedisTransport(config).
		WithMonitor(monitor)

	broadcaster := comms.NewBroadcaster(config).
		WithLog(notificationLog).
		WithTransport(redisTransport).
		WithMonitor(monitor)

	inbox := comms.NewInbox(config).
		WithLog(notificationLog).
		WithHints(hintStore).
		WithTransport(redisTransport).
		WithMonitor(monitor)

	provider := storage.NewClient(config)

	runner := jobs.NewRunner(config).
		WithStore(jobStore).
		WithNotifier(broadcaster).
		WithMonitor(monitor)

	manager := pins.NewManager(config).
		WithProvider(provider).
		WithHints(hintStore).
		WithRunner(runner)

	collector := gc.NewCollector(config).
		WithAgreements(agreementStore).
		WithUnpinner(manager).
		WithNotifier(broadcaster).
		WithHints(hintStore).
		WithMonitor(monitor)

	eventFeed := feed.NewFeed(config).
		WithMonitor(monitor)

	processor := events.NewProcessor(config).
		WithInput(eventFeed.Events()).
		WithAgreements(agreementStore).
		WithPinManager(manager).
		WithNotifier(broadcaster).
		WithHints(hintStore).
		WithBlocks(collector).
		WithState(stateStore).
		WithMonitor(monitor)

	self.Task = self.Task.
		WithSubtask(monitor.Task).
		WithSubtask(server.Task).
		WithSubtask(redisTransport.Task).
		WithSubtask(inbox.Task).
		WithSubtask(collector.Task).
		WithSubtask(eventFeed.Task).
		WithSubtask(processor.Task)

	return
}
