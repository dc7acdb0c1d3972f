package features

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// member is the slice of a row the cohort windows look at.
type member struct {
	transactionID string
	account       string
	device        string
	timestamp     time.Time
	date          civil.Date
	amount        float64
}

type deviceDay struct {
	device string
	date   civil.Date
}

// Cohorts indexes row positions by every partition key the windows use.
// Each slice keeps input order; ordering for frames is applied per window.
type Cohorts struct {
	members   []member
	byAccount map[string][]int
	byDevice  map[deviceDay][]int
	byDate    map[civil.Date][]int
}

func buildCohorts(members []member) *Cohorts {
	c := &Cohorts{
		members:   members,
		byAccount: make(map[string][]int),
		byDevice:  make(map[deviceDay][]int),
		byDate:    make(map[civil.Date][]int),
	}
	for i, m := range members {
		c.byAccount[m.account] = append(c.byAccount[m.account], i)
		dd := deviceDay{device: m.device, date: m.date}
		c.byDevice[dd] = append(c.byDevice[dd], i)
		c.byDate[m.date] = append(c.byDate[m.date], i)
	}
	return c
}

// windowValues is the per-row result of the cohort pass, indexed like members.
type windowValues struct {
	accountAgeDays    []int
	dailyDeviceVolume []int
	senderTxLastHour  []int
	dailyAmountRank   []int
}

func (c *Cohorts) compute() windowValues {
	return windowValues{
		accountAgeDays:    c.accountAgeDays(),
		dailyDeviceVolume: c.dailyDeviceVolume(),
		senderTxLastHour:  c.senderRunningCount(),
		dailyAmountRank:   c.dailyAmountRank(),
	}
}

// accountAgeDays is the whole-day distance between a row's date and the
// earliest date of its sender.
func (c *Cohorts) accountAgeDays() []int {
	out := make([]int, len(c.members))
	for _, idx := range c.byAccount {
		first := c.members[idx[0]].date
		for _, i := range idx[1:] {
			if d := c.members[i].date; d.Before(first) {
				first = d
			}
		}
		for _, i := range idx {
			out[i] = c.members[i].date.DaysSince(first)
		}
	}
	return out
}

// dailyDeviceVolume broadcasts the size of each (device, date) cohort.
func (c *Cohorts) dailyDeviceVolume() []int {
	out := make([]int, len(c.members))
	for _, idx := range c.byDevice {
		for _, i := range idx {
			out[i] = len(idx)
		}
	}
	return out
}

// senderRunningCount counts rows in a sender's cohort ordered by timestamp,
// from SenderWindowPreceding rows back through the current row. The frame is
// in rows, not time.
func (c *Cohorts) senderRunningCount() []int {
	out := make([]int, len(c.members))
	for _, idx := range c.byAccount {
		ordered := append([]int(nil), idx...)
		sort.SliceStable(ordered, func(a, b int) bool {
			ma, mb := c.members[ordered[a]], c.members[ordered[b]]
			if !ma.timestamp.Equal(mb.timestamp) {
				return ma.timestamp.Before(mb.timestamp)
			}
			return ma.transactionID < mb.transactionID
		})
		for pos, i := range ordered {
			out[i] = min(pos+1, SenderWindowPreceding+1)
		}
	}
	return out
}

// dailyAmountRank ranks amount descending within each date using competition
// ranking: ties share a rank and the next distinct amount skips ahead.
func (c *Cohorts) dailyAmountRank() []int {
	out := make([]int, len(c.members))
	for _, idx := range c.byDate {
		ordered := append([]int(nil), idx...)
		sort.SliceStable(ordered, func(a, b int) bool {
			return c.members[ordered[a]].amount > c.members[ordered[b]].amount
		})
		rank := 0
		for pos, i := range ordered {
			if pos == 0 || c.members[i].amount != c.members[ordered[pos-1]].amount {
				rank = pos + 1
			}
			out[i] = rank
		}
	}
	return out
}
