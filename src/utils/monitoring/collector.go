package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	EventsProcessed        *prometheus.Desc
	EventsFiltered         *prometheus.Desc
	ProcessingErrors       *prometheus.Desc
	LastBlockHeight        *prometheus.Desc
	TotalCapacityBytes     *prometheus.Desc
	JobsStarted            *prometheus.Desc
	JobsSucceeded          *prometheus.Desc
	JobsRetries            *prometheus.Desc
	JobsFailed             *prometheus.Desc
	JobsSizeExceeded       *prometheus.Desc
	AgreementsMarked       *prometheus.Desc
	AgreementsReprieved    *prometheus.Desc
	AgreementsExpired      *prometheus.Desc
	HintsSwept             *prometheus.Desc
	NotificationsPublished *prometheus.Desc
	NotificationsEvicted   *prometheus.Desc
	MessagesReplayed       *prometheus.Desc
	PublishErrors          *prometheus.Desc
	InboundErrors          *prometheus.Desc
}

func NewCollector() *Collector {
	labels := prometheus.Labels{
		"app": "pinner",
	}

	return &Collector{
		EventsProcessed:        prometheus.NewDesc("events_processed", "", nil, labels),
		EventsFiltered:         prometheus.NewDesc("events_filtered", "", nil, labels),
		ProcessingErrors:       prometheus.NewDesc("processing_errors", "", nil, labels),
		LastBlockHeight:        prometheus.NewDesc("last_block_height", "", nil, labels),
		TotalCapacityBytes:     prometheus.NewDesc("total_capacity_bytes", "", nil, labels),
		JobsStarted:            prometheus.NewDesc("jobs_started", "", nil, labels),
		JobsSucceeded:          prometheus.NewDesc("jobs_succeeded", "", nil, labels),
		JobsRetries:            prometheus.NewDesc("jobs_retries", "", nil, labels),
		JobsFailed:             prometheus.NewDesc("jobs_failed", "", nil, labels),
		JobsSizeExceeded:       prometheus.NewDesc("jobs_size_exceeded", "", nil, labels),
		AgreementsMarked:       prometheus.NewDesc("agreements_marked", "", nil, labels),
		AgreementsReprieved:    prometheus.NewDesc("agreements_reprieved", "", nil, labels),
		AgreementsExpired:      prometheus.NewDesc("agreements_expired", "", nil, labels),
		HintsSwept:             prometheus.NewDesc("hints_swept", "", nil, labels),
		NotificationsPublished: prometheus.NewDesc("notifications_published", "", nil, labels),
		NotificationsEvicted:   prometheus.NewDesc("notifications_evicted", "", nil, labels),
		MessagesReplayed:       prometheus.NewDesc("messages_replayed", "", nil, labels),
		PublishErrors:          prometheus.NewDesc("publish_errors", "", nil, labels),
		InboundErrors:          prometheus.NewDesc("inbound_errors", "", nil, labels),
	}
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- self.EventsProcessed
	ch <- self.EventsFiltered
	ch <- self.ProcessingErrors
	ch <- self.LastBlockHeight
	ch <- self.TotalCapacityBytes
	ch <- self.JobsStarted
	ch <- self.JobsSucceeded
	ch <- self.JobsRetries
	ch <- self.JobsFailed
	ch <- self.JobsSizeExceeded
	ch <- self.AgreementsMarked
	ch <- self.AgreementsReprieved
	ch <- self.AgreementsExpired
	ch <- self.HintsSwept
	ch <- self.NotificationsPublished
	ch <- self.NotificationsEvicted
	ch <- self.MessagesReplayed
	ch <- self.PublishErrors
	ch <- self.InboundErrors
}

// Collect implements required collect function for all prometheus collectors
func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	report := &self.monitor.Report
	ch <- prometheus.MustNewConstMetric(self.EventsProcessed, prometheus.CounterValue, float64(report.Processor.State.EventsProcessed.Load()))
	ch <- prometheus.MustNewConstMetric(self.EventsFiltered, prometheus.CounterValue, float64(report.Processor.State.EventsFiltered.Load()))
	ch <- prometheus.MustNewConstMetric(self.ProcessingErrors, prometheus.CounterValue, float64(report.Processor.Errors.Processing.Load()))
	ch <- prometheus.MustNewConstMetric(self.LastBlockHeight, prometheus.GaugeValue, float64(report.Processor.State.LastBlockHeight.Load()))
	ch <- prometheus.MustNewConstMetric(self.TotalCapacityBytes, prometheus.GaugeValue, float64(report.Processor.State.TotalCapacityBytes.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsStarted, prometheus.CounterValue, float64(report.Jobs.State.Started.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsSucceeded, prometheus.CounterValue, float64(report.Jobs.State.Succeeded.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsRetries, prometheus.CounterValue, float64(report.Jobs.State.Retries.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsFailed, prometheus.CounterValue, float64(report.Jobs.Errors.Failed.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsSizeExceeded, prometheus.CounterValue, float64(report.Jobs.Errors.SizeExceeded.Load()))
	ch <- prometheus.MustNewConstMetric(self.AgreementsMarked, prometheus.CounterValue, float64(report.Gc.State.AgreementsMarked.Load()))
	ch <- prometheus.MustNewConstMetric(self.AgreementsReprieved, prometheus.CounterValue, float64(report.Gc.State.AgreementsReprieved.Load()))
	ch <- prometheus.MustNewConstMetric(self.AgreementsExpired, prometheus.CounterValue, float64(report.Gc.State.AgreementsExpired.Load()))
	ch <- prometheus.MustNewConstMetric(self.HintsSwept, prometheus.CounterValue, float64(report.Gc.State.HintsSwept.Load()))
	ch <- prometheus.MustNewConstMetric(self.NotificationsPublished, prometheus.CounterValue, float64(report.Comms.State.NotificationsPublished.Load()))
	ch <- prometheus.MustNewConstMetric(self.NotificationsEvicted, prometheus.CounterValue, float64(report.Comms.State.NotificationsEvicted.Load()))
	ch <- prometheus.MustNewConstMetric(self.MessagesReplayed, prometheus.CounterValue, float64(report.Comms.State.MessagesReplayed.Load()))
	ch <- prometheus.MustNewConstMetric(self.PublishErrors, prometheus.CounterValue, float64(report.Comms.Errors.Publish.Load()))
	ch <- prometheus.MustNewConstMetric(self.InboundErrors, prometheus.CounterValue, float64(report.Comms.Errors.Inbound.Load()))
}
