// liveness.go - liveness probe logic
package server

// NodeLiveness returns true once the issuing and redemption sides are wired.
func (s *Server) NodeLiveness() bool {
	return s.carrier != nil && s.controller != nil
}
