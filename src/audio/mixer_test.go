package audio

import (
	"testing"
)

// stubTrack replays a fixed sample buffer.
type stubTrack struct {
	name    string
	samples []int16
	out     chan []int16
}

func newStubTrack(name string, samples []int16) *stubTrack {
	return &stubTrack{name: name, samples: samples, out: make(chan []int16, 1)}
}

func (s *stubTrack) Name() string { return s.name }

func (s *stubTrack) Start() error {
	go func() {
		s.out <- s.samples
		close(s.out)
	}()
	return nil
}

func (s *stubTrack) Stop() error { return nil }

func (s *stubTrack) Samples() <-chan []int16 { return s.out }

func TestMixBuffersSums(t *testing.T) {
	got := mixBuffers([][]int16{
		{100, 200, 300},
		{50, -200, 0, 25},
	})
	want := []int16{150, 0, 300, 25}
	if len(got) != len(want) {
		t.Fatalf("mixed length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMixBuffersClips(t *testing.T) {
	got := mixBuffers([][]int16{
		{32000, -32000},
		{32000, -32000},
	})
	if got[0] != 32767 {
		t.Errorf("positive overflow = %d, want 32767", got[0])
	}
	if got[1] != -32768 {
		t.Errorf("negative overflow = %d, want -32768", got[1])
	}
}

func TestMixerRefusesDuplicateAttachment(t *testing.T) {
	track := newStubTrack("system", []int16{1, 2, 3})
	m := NewMixer()
	if err := m.Attach(track); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if err := m.Attach(track); err == nil {
		t.Fatal("second attach of the same track must fail")
	}
	if m.TrackCount() != 1 {
		t.Errorf("track count = %d, want 1", m.TrackCount())
	}
}

func TestMixerProducesSinglePCMStream(t *testing.T) {
	m := NewMixer()
	m.Attach(newStubTrack("mic", []int16{10, 20}))
	m.Attach(newStubTrack("system", []int16{1, 2, 3}))
	m.Start()
	m.Stop()

	pcm := m.PCM()
	if len(pcm) != 6 { // 3 samples * 2 bytes
		t.Fatalf("pcm length = %d, want 6", len(pcm))
	}
	samples := bytesToSamples(pcm)
	want := []int16{11, 22, 3}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("mixed sample %d = %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestMixerEmptyPCM(t *testing.T) {
	m := NewMixer()
	m.Start()
	m.Stop()
	if pcm := m.PCM(); pcm != nil {
		t.Errorf("empty mixer PCM = %d bytes, want nil", len(pcm))
	}
}

func TestAttachNilIsNoop(t *testing.T) {
	m := NewMixer()
	if err := m.Attach(nil); err != nil {
		t.Errorf("Attach(nil) = %v, want nil", err)
	}
	if m.TrackCount() != 0 {
		t.Errorf("track count = %d, want 0", m.TrackCount())
	}
}
