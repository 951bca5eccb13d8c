// readiness.go - readiness probe logic
package server

// NodeReadiness returns true if the node is live and its ledger, if any, answers.
func (s *Server) NodeReadiness() bool {
	if !s.NodeLiveness() {
		return false
	}
	if s.anchors == nil {
		return true
	}
	_, err := s.anchors.Count()
	return err == nil
}
