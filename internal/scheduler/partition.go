package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eliotheinrich/pysims/internal/job"
)

// Partition selection rules.
const (
	RuleCores = "cores"
	RuleTime  = "time"
)

// PartitionRule picks a partition for jobs that do not name one.
type PartitionRule struct {
	Rule string `yaml:"rule"`
	// LargeCores is the core count at which a job gets a whole node.
	LargeCores int    `yaml:"large_cores"`
	Exclusive  string `yaml:"exclusive"`
	Shared     string `yaml:"shared"`

	// Time buckets: below ShortLimit is short, up to MediumLimit is medium,
	// anything longer is long.
	ShortLimit  time.Duration `yaml:"short_limit"`
	MediumLimit time.Duration `yaml:"medium_limit"`
	Short       string        `yaml:"short"`
	Medium      string        `yaml:"medium"`
	Long        string        `yaml:"long"`
}

// DefaultPartitionRule is the rule used when the site config sets none.
func DefaultPartitionRule() PartitionRule {
	return PartitionRule{
		Rule:        RuleCores,
		LargeCores:  48,
		Exclusive:   "exclusive",
		Shared:      "shared",
		ShortLimit:  time.Hour,
		MediumLimit: 24 * time.Hour,
		Short:       "short",
		Medium:      "medium",
		Long:        "long",
	}
}

// Resolve returns the partition for res. An explicit partition always wins.
func (r PartitionRule) Resolve(res job.Resources) (string, error) {
	if res.Partition != "" {
		return res.Partition, nil
	}
	switch r.Rule {
	case RuleCores, "":
		if res.Cores >= r.LargeCores {
			return r.Exclusive, nil
		}
		return r.Shared, nil
	case RuleTime:
		d, err := ParseTime(res.Time)
		if err != nil {
			return "", err
		}
		switch {
		case d < r.ShortLimit:
			return r.Short, nil
		case d <= r.MediumLimit:
			return r.Medium, nil
		default:
			return r.Long, nil
		}
	default:
		return "", fmt.Errorf("unknown partition rule %q", r.Rule)
	}
}

// ParseTime parses a scheduler time limit: "MM", "MM:SS", "HH:MM:SS",
// "D-HH", "D-HH:MM" or "D-HH:MM:SS".
func ParseTime(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty time limit")
	}
	var days int
	rest := s
	hasDays := false
	if i := strings.IndexByte(s, '-'); i >= 0 {
		d, err := strconv.Atoi(s[:i])
		if err != nil || d < 0 {
			return 0, fmt.Errorf("invalid time limit %q", s)
		}
		days, rest, hasDays = d, s[i+1:], true
	}
	parts := strings.Split(rest, ":")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time limit %q", s)
		}
		nums[i] = n
	}
	var h, m, sec int
	switch {
	case hasDays && len(nums) == 1:
		h = nums[0]
	case hasDays && len(nums) == 2:
		h, m = nums[0], nums[1]
	case len(nums) == 3:
		h, m, sec = nums[0], nums[1], nums[2]
	case !hasDays && len(nums) == 1:
		m = nums[0]
	case !hasDays && len(nums) == 2:
		m, sec = nums[0], nums[1]
	default:
		return 0, fmt.Errorf("invalid time limit %q", s)
	}
	return time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second, nil
}
