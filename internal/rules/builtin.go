package rules

import "github.com/lancejames221b/CyberSentinelAI/internal/schema"

// Monitor rule set priorities.
const (
	PriorityCredential   = 1
	PriorityRecon        = 2
	PriorityExploitation = 3
	PriorityExfiltration = 4
	PriorityHoneypot     = 5
	PriorityGeneric      = 6
)

// DefaultHoneypotPaths are the bait files deployed by the monitor.
var DefaultHoneypotPaths = []string{".env", ".bash_history", "robots.txt"}

// MonitorRuleSets returns the built-in monitor sets in priority order.
// honeypotPaths feeds the path containment set; nil uses the defaults and an
// empty slice disables the set.
func MonitorRuleSets(honeypotPaths []string) []*RuleSet {
	if honeypotPaths == nil {
		honeypotPaths = DefaultHoneypotPaths
	}
	sets := []*RuleSet{
		CredentialRuleSet(),
		ReconRuleSet(),
		ExploitationRuleSet(),
		ExfiltrationRuleSet(),
	}
	if len(honeypotPaths) > 0 {
		sets = append(sets, HoneypotRuleSet(honeypotPaths))
	}
	sets = append(sets, GenericRuleSet())
	return mustCompile(sets...)
}

// CredentialRuleSet detects SSH and login attacks.
func CredentialRuleSet() *RuleSet {
	return &RuleSet{
		Name:        "credential",
		Description: "SSH access and authentication failures",
		Priority:    PriorityCredential,
		Category:    schema.CategoryCredentialAttack,
		Match:       MatchRegex,
		Patterns: []string{
			`ssh\s+.*@`,
			`authentication\s+failure`,
			`failed\s+password`,
			`invalid\s+user`,
			`connection\s+closed`,
		},
		Tags: []string{"authentication", "ssh"},
		MITRE: &MITREMapping{
			TacticID:    "TA0006",
			TacticName:  "Credential Access",
			TechniqueID: "T1110",
		},
	}
}

// ReconRuleSet detects scanning and discovery.
func ReconRuleSet() *RuleSet {
	return &RuleSet{
		Name:        "reconnaissance",
		Description: "Port scans and service discovery",
		Priority:    PriorityRecon,
		Category:    schema.CategoryReconnaissance,
		Match:       MatchRegex,
		Patterns: []string{
			`nmap`,
			`port\s+scan`,
			`discovery`,
			`reconnaissance`,
		},
		Tags: []string{"scanning"},
		MITRE: &MITREMapping{
			TacticID:    "TA0043",
			TacticName:  "Reconnaissance",
			TechniqueID: "T1595",
		},
	}
}

// ExploitationRuleSet detects exploit and privilege escalation attempts.
func ExploitationRuleSet() *RuleSet {
	return &RuleSet{
		Name:        "exploitation",
		Description: "Exploits and privilege escalation",
		Priority:    PriorityExploitation,
		Category:    schema.CategoryExploitation,
		Match:       MatchRegex,
		Patterns: []string{
			`exploit`,
			`injection`,
			`vulnerability`,
			`privilege\s+escalation`,
			`sudo`,
			`permission`,
		},
		Tags: []string{"exploit", "privilege-escalation"},
		MITRE: &MITREMapping{
			TacticID:    "TA0004",
			TacticName:  "Privilege Escalation",
			TechniqueID: "T1068",
		},
	}
}

// ExfiltrationRuleSet detects access to the flag.
func ExfiltrationRuleSet() *RuleSet {
	return &RuleSet{
		Name:        "exfiltration",
		Description: "Flag access and capture",
		Priority:    PriorityExfiltration,
		Category:    schema.CategoryExfiltration,
		Match:       MatchRegex,
		Patterns: []string{
			`/var/ctf/flag\.txt`,
			`flag\{[^\}]*\}`,
			`cat\s+.*flag`,
		},
		Tags: []string{"flag", "exfiltration"},
		MITRE: &MITREMapping{
			TacticID:    "TA0010",
			TacticName:  "Exfiltration",
			TechniqueID: "T1041",
		},
	}
}

// HoneypotRuleSet detects references to deployed bait files. Paths are
// matched literally and case-sensitively.
func HoneypotRuleSet(paths []string) *RuleSet {
	return &RuleSet{
		Name:        "honeypot",
		Description: "Access to deployed bait files",
		Priority:    PriorityHoneypot,
		Category:    schema.CategoryHoneypotTrigger,
		Match:       MatchContains,
		Patterns:    append([]string(nil), paths...),
		Tags:        []string{"deception"},
	}
}

// GenericRuleSet is the keyword fallback.
func GenericRuleSet() *RuleSet {
	return &RuleSet{
		Name:        "generic",
		Description: "Generic suspicious keywords",
		Priority:    PriorityGeneric,
		Category:    schema.CategorySuspicious,
		Match:       MatchKeyword,
		Patterns:    []string{"suspicious", "unusual", "unexpected", "root", "admin"},
	}
}

// Targeted watcher names.
const (
	WatcherPortScan        = "port_scan"
	WatcherSSHLogin        = "ssh_login"
	WatcherFileExploration = "file_exploration"
	WatcherExploitation    = "exploitation"
	WatcherExfiltration    = "exfiltration"
)

// TargetedWatchers lists the targeted watcher names in launch order.
var TargetedWatchers = []string{
	WatcherPortScan,
	WatcherSSHLogin,
	WatcherFileExploration,
	WatcherExploitation,
	WatcherExfiltration,
}

// TargetedRuleSet returns the single rule set watched by a targeted watcher,
// or nil for an unknown name.
func TargetedRuleSet(watcher string) *RuleSet {
	var set *RuleSet
	switch watcher {
	case WatcherPortScan:
		set = &RuleSet{
			Category: schema.CategoryReconnaissance,
			Patterns: []string{`nmap`, `port\s+scan`, `scanning`, `Scanning target ports`},
		}
	case WatcherSSHLogin:
		set = &RuleSet{
			Category: schema.CategoryCredentialAttack,
			Patterns: []string{`ssh`, `Attempting SSH access`, `SSH access successful`, `sshpass`},
		}
	case WatcherFileExploration:
		set = &RuleSet{
			Category: schema.CategoryFileExploration,
			Patterns: []string{`find\s+/`, `ls\s+-la`, `Exploring file system`, `File listing`, `\.txt`},
		}
	case WatcherExploitation:
		set = &RuleSet{
			Category: schema.CategoryExploitation,
			Patterns: []string{
				`sudo`, `Attempting to access flag file`, `Permission check`,
				`Symlink attempt`, `ln\s+-s`, `SUID`, `find\s+/\s+-perm`,
			},
		}
	case WatcherExfiltration:
		set = &RuleSet{
			Category: schema.CategoryExfiltration,
			Patterns: []string{
				`cat\s+/var/ctf/flag\.txt`, `python3\s+-c`, `dd\s+if=/var/ctf/flag\.txt`,
				`Attempting flag exfiltration`, `flag\{`, `SUCCESS: Flag captured`,
			},
		}
	default:
		return nil
	}

	set.Name = watcher
	set.Match = MatchRegex
	set.Priority = 1
	if err := set.Compile(); err != nil {
		panic(err)
	}
	return set
}

// mustCompile compiles built-in sets, which are known to be valid.
func mustCompile(sets ...*RuleSet) []*RuleSet {
	for _, s := range sets {
		if err := s.Compile(); err != nil {
			panic(err)
		}
	}
	return sets
}
