package model

import "iter"

// Keys of the diagnostics counters, relative to the Stats prefix.
const (
	StatsFilesTotal          = "_files_total"
	StatsFilesExcluded       = "_files_excluded"
	StatsFilesErrors         = "_files_errors"
	StatsHostsTotal          = "_hosts_total"
	StatsHostsDropped        = "_hosts_dropped"
	StatsServicesDropped     = "_services_dropped"
	StatsServicesSynthesized = "_services_synthesized"
	StatsFindingsTotal       = "_findings_total"
	StatsFindingsPortInvalid = "_findings_port_invalid"
	StatsFieldsDefaulted     = "_fields_defaulted"
	StatsSeverityUnknown     = "_severity_unrecognized"
)

// Stats is the diagnostics channel of the normalization layer. Tolerated
// input problems never fail a call, they are counted here instead.
type Stats interface {
	IncHosts()
	IncDroppedHosts()
	IncDroppedServices()
	IncSynthesizedServices()
	IncFindings()
	IncInvalidFindingPorts()
	IncDefaultedFields(n int)
	IncUnknownSeverities()
	Stats() iter.Seq2[string, string]
}
