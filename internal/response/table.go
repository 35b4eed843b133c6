// Package response turns detection events into simulated countermeasures and
// records them in the event ledger and the activity log.
package response

import (
	"strings"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// Action is the fixed countermeasure for one category. Detection, Response and
// Log are templates; {src}, {path} and {line} are replaced with the event's
// source, target and raw excerpt.
type Action struct {
	Detection  string  `yaml:"detection"`
	Response   string  `yaml:"response"`
	Log        string  `yaml:"log"`
	Confidence float64 `yaml:"confidence"`
}

// Table maps categories to actions.
type Table map[schema.Category]Action

// Profile names.
const (
	ProfileMonitor  = "monitor"
	ProfileTargeted = "targeted"
)

// MonitorTable returns the actions of the general monitor.
func MonitorTable() Table {
	return Table{
		schema.CategoryCredentialAttack: {
			Detection:  "SSH activity detected",
			Response:   "monitoring session from {src}",
			Log:        "Detected SSH activity from {src}: {line}",
			Confidence: 0.90,
		},
		schema.CategoryBruteForce: {
			Detection:  "brute force attempt on SSH",
			Response:   "blocked {src} via iptables",
			Log:        "Possible SSH brute force attempt from {src}",
			Confidence: 0.92,
		},
		schema.CategoryReconnaissance: {
			Detection:  "port scanning detected",
			Response:   "increased logging and monitoring for {src}",
			Log:        "Detected scanning activity from {src}: {line}",
			Confidence: 0.88,
		},
		schema.CategoryExploitation: {
			Detection:  "exploit attempt",
			Response:   "patched vulnerable service and restricted access for {src}",
			Log:        "Detected possible exploit attempt from {src}: {line}",
			Confidence: 0.85,
		},
		schema.CategoryExfiltration: {
			Detection:  "flag access attempt",
			Response:   "logged attempt and notified admin, verified flag integrity",
			Log:        "ALERT: Flag access attempt detected from {src}: {line}",
			Confidence: 0.99,
		},
		schema.CategoryHoneypotTrigger: {
			Detection:  "honeypot triggered",
			Response:   "tracked access to {path} from {src}",
			Log:        "Honeypot triggered: {path} accessed by {src}",
			Confidence: 0.97,
		},
		schema.CategorySuspicious: {
			Detection:  "suspicious activity",
			Response:   "monitoring actions from {src}",
			Log:        "Detected suspicious activity from {src}: {line}",
			Confidence: 0.75,
		},
		schema.CategoryDecoyDeployment: {
			Detection:  "decoy deployment",
			Response:   "created decoy file at {path}",
			Log:        "Created honeypot at {path}",
			Confidence: 0.80,
		},
		schema.CategoryTargetedDefense: {
			Detection:  "targeted defense activated",
			Response:   "implementing specific countermeasures against known attack vectors",
			Log:        "Blue Team Targeted Defense starting",
			Confidence: 0.98,
		},
		schema.CategorySystemStartup: {
			Detection:  "system startup",
			Response:   "initialized advanced monitoring",
			Log:        "Blue Team Monitor starting",
			Confidence: 1.0,
		},
	}
}

// TargetedTable returns the actions of the targeted watchers. Categories the
// watchers never produce fall back to the monitor actions.
func TargetedTable() Table {
	t := MonitorTable()
	t[schema.CategoryReconnaissance] = Action{
		Detection:  "port scanning detected",
		Response:   "implemented rate limiting and increased logging",
		Log:        "ALERT: Port scanning detected!",
		Confidence: 0.95,
	}
	t[schema.CategoryCredentialAttack] = Action{
		Detection:  "SSH login attempt",
		Response:   "monitoring session and implementing command restrictions",
		Log:        "ALERT: SSH login attempt detected!",
		Confidence: 0.90,
	}
	t[schema.CategoryFileExploration] = Action{
		Detection:  "file system exploration",
		Response:   "implementing file access auditing and restrictions",
		Log:        "ALERT: File system exploration detected!",
		Confidence: 0.85,
	}
	t[schema.CategoryExploitation] = Action{
		Detection:  "exploitation attempt",
		Response:   "hardening permissions and implementing additional access controls",
		Log:        "ALERT: Exploitation attempt detected!",
		Confidence: 0.95,
	}
	t[schema.CategoryExfiltration] = Action{
		Detection:  "flag exfiltration attempt",
		Response:   "implementing data loss prevention and alerting administrators",
		Log:        "CRITICAL ALERT: Flag exfiltration attempt detected!",
		Confidence: 0.99,
	}
	t[schema.CategoryDecoyDeployment] = Action{
		Detection:  "decoy deployment",
		Response:   "created decoy flag at {path}",
		Log:        "Created decoy flag at {path}",
		Confidence: 0.80,
	}
	return t
}

// TableFor returns the table for a profile name. Unknown names get the
// monitor table.
func TableFor(profile string) Table {
	if profile == ProfileTargeted {
		return TargetedTable()
	}
	return MonitorTable()
}

// render fills the placeholders of tmpl from ev.
func render(tmpl string, ev schema.DetectionEvent) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	src := ev.Source
	if src == "" {
		src = schema.UnknownSource
	}
	return strings.NewReplacer(
		"{src}", src,
		"{path}", ev.Target,
		"{line}", ev.RawExcerpt,
	).Replace(tmpl)
}
