package channel

import "sync"

// Slot은 채널당 하나의 최신 결과만 보관하는 단일 슬롯 캐시입니다.
// 새 결과는 이전 값을 항상 덮어쓰며, Take는 읽기와 비우기를 원자적으로 수행합니다.
type Slot struct {
	mu      sync.Mutex
	text    string
	present bool
}

// Store는 슬롯 값을 덮어씁니다 (last write wins)
func (s *Slot) Store(text string) {
	s.mu.Lock()
	s.text = text
	s.present = true
	s.mu.Unlock()
}

// Take는 보관 중인 값을 반환하고 슬롯을 비웁니다.
// 값이 없으면 ok는 false입니다.
func (s *Slot) Take() (text string, ok bool) {
	s.mu.Lock()
	text, ok = s.text, s.present
	s.text, s.present = "", false
	s.mu.Unlock()
	return text, ok
}

// Pending은 아직 전달되지 않은 값이 있는지 반환합니다
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}
