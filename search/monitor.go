package search

import "github.com/halcyard/fuselage/core"

// SearchMonitor provides hooks to observe the query process.
// Implement this interface to track intermediate steps during retrieval.
type SearchMonitor interface {
	Start(req *core.QueryRequest)
	AfterSemanticSearch(matches []core.IndexMatch)
	AfterLexicalSearch(matches []core.IndexMatch)
	SignalDegraded(signal string, err error)
	AfterFilter(semantic, lexical int)
	Finish(result *core.RetrievalResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ *core.QueryRequest)              {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.IndexMatch) {}
func (n *noopMonitor) AfterLexicalSearch(_ []core.IndexMatch)  {}
func (n *noopMonitor) SignalDegraded(_ string, _ error)        {}
func (n *noopMonitor) AfterFilter(_, _ int)                    {}
func (n *noopMonitor) Finish(_ *core.RetrievalResult)          {}
