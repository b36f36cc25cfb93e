package search

// QueryMonitor provides hooks to observe the query process.
// Implement this interface to track intermediate steps during a query.
type QueryMonitor interface {
	Start(imagePath string)
	AfterPreprocess(width, height int)
	AfterEmbedding(dim int)
	Finish(results []Match)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)           {}
func (n *noopMonitor) AfterPreprocess(_, _ int) {}
func (n *noopMonitor) AfterEmbedding(_ int)     {}
func (n *noopMonitor) Finish(_ []Match)         {}
