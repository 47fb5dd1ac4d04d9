// Package extract adapts the external XML-to-record translator described in
// spec §4.2 into a filter.Record: it walks one BGP_MESSAGE document and pulls
// out the handful of field paths the filter store cares about. It is the
// thin "~5% of budget" adapter — everything it does is encoding/xml lookups
// and sort/dedup, no BGP semantics beyond address-family classification.
package extract

import (
	"encoding/xml"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/route-beacon/bgpmon-filter/internal/filter"
)

type bgpMessage struct {
	XMLName xml.Name  `xml:"BGP_MESSAGE"`
	ASCII   asciiMsg  `xml:"ASCII_MSG"`
}

type asciiMsg struct {
	Update update `xml:"UPDATE"`
}

type update struct {
	Withdrawn     prefixList    `xml:"WITHDRAWN"`
	NLRI          prefixList    `xml:"NLRI"`
	MPReachNLRI   mpReach       `xml:"MP_REACH_NLRI"`
	MPUnreachNLRI mpUnreach     `xml:"MP_UNREACH_NLRI"`
	ASPath        asPath        `xml:"AS_PATH"`
}

type prefixList struct {
	Prefixes []prefix `xml:"PREFIX"`
}

type prefix struct {
	Address string `xml:"ADDRESS"`
}

type mpReach struct {
	NLRI prefixList `xml:"NLRI"`
}

type mpUnreach struct {
	Withdrawn prefixList `xml:"WITHDRAWN"`
}

type asPath struct {
	Segments []asSeg `xml:"AS_SEG"`
}

type asSeg struct {
	AS []string `xml:"AS"`
}

// Record builds a filter.Record from one raw BGP_MESSAGE XML document.
// A document that doesn't parse, or that's missing some of the paths
// above, is not an error per spec §4.2/§7 — it simply yields an empty or
// partial record, which the filter store then fails to match on the
// corresponding axes.
func Record(raw []byte) filter.Record {
	var msg bgpMessage
	if err := xml.Unmarshal(raw, &msg); err != nil {
		return filter.Record{}
	}

	var v4, v6 []string
	u := msg.ASCII.Update

	// WITHDRAWN outside MP_UNREACH_NLRI is classified as v4 unconditionally,
	// regardless of the address's actual form — the translator this adapter
	// stands in for does this, and the spec preserves it as the contract
	// (see Open Questions).
	for _, p := range u.Withdrawn.Prefixes {
		if p.Address != "" {
			v4 = append(v4, p.Address)
		}
	}

	for _, p := range u.NLRI.Prefixes {
		if p.Address != "" {
			v4 = append(v4, p.Address)
		}
	}

	for _, p := range u.MPReachNLRI.NLRI.Prefixes {
		classify(p.Address, &v4, &v6)
	}
	for _, p := range u.MPUnreachNLRI.Withdrawn.Prefixes {
		classify(p.Address, &v4, &v6)
	}

	rec := filter.Record{
		V4Prefixes: sortedUnique(v4),
		V6Prefixes: sortedUnique(v6),
		TerminalAS: terminalAS(u.ASPath),
	}
	return rec
}

// classify appends addr to v4 or v6 according to the form of its address
// part (before any "/mask"), leaving addr out of both if it's neither.
func classify(addr string, v4, v6 *[]string) {
	if addr == "" {
		return
	}
	host := addr
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		host = addr[:i]
	}
	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return
	case ip.To4() != nil:
		*v4 = append(*v4, addr)
	default:
		*v6 = append(*v6, addr)
	}
}

// terminalAS returns the rightmost AS number of the last AS_SEG, or 0 if
// AS_PATH is absent or empty — origin-of-last-segment only, not the full
// path, per the Open Question decision preserved from the source.
func terminalAS(p asPath) int {
	if len(p.Segments) == 0 {
		return 0
	}
	last := p.Segments[len(p.Segments)-1]
	if len(last.AS) == 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(last.AS[len(last.AS)-1]))
	if err != nil {
		return 0
	}
	return n
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
