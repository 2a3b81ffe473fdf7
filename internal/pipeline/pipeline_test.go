package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/iabetor/briefcast/internal/history"
	"github.com/iabetor/briefcast/internal/library"
	"github.com/iabetor/briefcast/internal/llm"
	"github.com/iabetor/briefcast/internal/news"
	"github.com/iabetor/briefcast/internal/player"
	"github.com/iabetor/briefcast/internal/tts"
	"github.com/iabetor/briefcast/internal/wav"
)

type fakeScripter struct {
	script  string
	err     error
	lastReq llm.ScriptRequest
}

func (f *fakeScripter) Generate(ctx context.Context, req llm.ScriptRequest) (string, error) {
	f.lastReq = req
	return f.script, f.err
}

type fakeSynth struct {
	result tts.Result
	err    error
	got    string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (tts.Result, error) {
	f.got = text
	return f.result, f.err
}

type fakePlayer struct {
	loaded    [][]byte
	loadErr   error
	playCount int
	stopCount int
	duration  float64
}

func (f *fakePlayer) Load(data []byte) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = append(f.loaded, data)
	return nil
}
func (f *fakePlayer) Play() { f.playCount++ }

// Stop mirrors the real engine: the invalidated source's bytes are gone.
func (f *fakePlayer) Stop() {
	f.stopCount++
	f.loaded = nil
}
func (f *fakePlayer) Snapshot() player.Snapshot {
	return player.Snapshot{Duration: f.duration}
}
func (f *fakePlayer) LastLoaded() []byte {
	if len(f.loaded) == 0 {
		return nil
	}
	return f.loaded[len(f.loaded)-1]
}

type fakeLibrary struct {
	added   []library.Briefing
	addErr  error
	audio   map[string][]byte
	deleted []string
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{audio: map[string][]byte{}}
}

func (f *fakeLibrary) Add(topic string, audioData []byte) (library.Briefing, error) {
	if f.addErr != nil {
		return library.Briefing{}, f.addErr
	}
	b := library.Briefing{ID: "id-" + topic, Topic: topic, AudioFile: "id.wav"}
	f.added = append(f.added, b)
	f.audio[b.ID] = audioData
	return b, nil
}

func (f *fakeLibrary) ReadAudio(id string) ([]byte, error) {
	data, ok := f.audio[id]
	if !ok {
		return nil, errors.New("missing audio")
	}
	return data, nil
}

func (f *fakeLibrary) Delete(id string) (library.DeleteResult, error) {
	f.deleted = append(f.deleted, id)
	_, existed := f.audio[id]
	delete(f.audio, id)
	return library.DeleteResult{IndexRemoved: existed, BlobRemoved: existed}, nil
}

func (f *fakeLibrary) Get(id string) (library.Briefing, bool) {
	for _, b := range f.added {
		if b.ID == id {
			return b, true
		}
	}
	return library.Briefing{}, false
}

func (f *fakeLibrary) List() []library.Briefing { return f.added }

type fakeHistory struct {
	events []history.Event
	err    error
}

func (f *fakeHistory) Record(event history.Event, topic, briefingID string, duration float64) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeHeadlines struct {
	headlines []news.Headline
}

func (f *fakeHeadlines) Latest(ctx context.Context, limit int) []news.Headline {
	return f.headlines
}

func pcmResult(data []byte) tts.Result {
	return tts.Result{
		Data:          data,
		Encoding:      tts.EncodingPCM,
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

func TestPipeline_GenerateHappyPath(t *testing.T) {
	scripter := &fakeScripter{script: "Good morning."}
	synth := &fakeSynth{result: pcmResult([]byte{1, 2, 3, 4})}
	pl := &fakePlayer{}
	lib := newFakeLibrary()

	p := New(scripter, synth, pl, lib)
	cur, err := p.Generate(context.Background(), Request{Topic: "Markets", LengthSeconds: 60, Tone: "calm"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if cur.Topic != "Markets" || cur.Script != "Good morning." {
		t.Errorf("unexpected current: %+v", cur)
	}
	if scripter.lastReq.LengthSeconds != 60 || scripter.lastReq.Tone != "calm" {
		t.Errorf("request fields not forwarded: %+v", scripter.lastReq)
	}
	if synth.got != "Good morning." {
		t.Errorf("script not forwarded to synthesis: %q", synth.got)
	}

	// Raw PCM must arrive at the player wrapped in a WAV container.
	if len(pl.loaded) != 1 {
		t.Fatalf("expected 1 load, got %d", len(pl.loaded))
	}
	if !wav.IsWAV(pl.loaded[0]) {
		t.Error("loaded audio is not a WAV container")
	}
	f, pcm, err := wav.Decode(pl.loaded[0])
	if err != nil {
		t.Fatalf("loaded audio does not decode: %v", err)
	}
	if f.SampleRate != 24000 || f.Channels != 1 || f.BitsPerSample != 16 {
		t.Errorf("unexpected container format: %+v", f)
	}
	if len(pcm) != 4 {
		t.Errorf("payload mismatch: %d bytes", len(pcm))
	}

	// Prior source invalidated, new one autoplayed.
	if pl.stopCount != 1 || pl.playCount != 1 {
		t.Errorf("stop=%d play=%d, want 1/1", pl.stopCount, pl.playCount)
	}
}

func TestPipeline_CompressedAudioPassesThrough(t *testing.T) {
	mp3 := []byte{0xFF, 0xFB, 0x90, 0x00}
	synth := &fakeSynth{result: tts.Result{Data: mp3, Encoding: tts.EncodingCompressed}}
	pl := &fakePlayer{}

	p := New(&fakeScripter{script: "text"}, synth, pl, newFakeLibrary())
	if _, err := p.Generate(context.Background(), Request{Topic: "T"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(pl.loaded) != 1 || &pl.loaded[0][0] != &mp3[0] {
		t.Error("compressed audio must pass through unmodified")
	}
}

func TestPipeline_StageTagging(t *testing.T) {
	pcmOK := pcmResult([]byte{1, 2})

	tests := []struct {
		name  string
		build func() *Pipeline
		topic string
		want  Stage
	}{
		{
			name: "empty topic",
			build: func() *Pipeline {
				return New(&fakeScripter{script: "s"}, &fakeSynth{result: pcmOK}, &fakePlayer{}, newFakeLibrary())
			},
			topic: "  ",
			want:  StageConfig,
		},
		{
			name: "script failure",
			build: func() *Pipeline {
				return New(&fakeScripter{err: llm.ErrAuth}, &fakeSynth{result: pcmOK}, &fakePlayer{}, newFakeLibrary())
			},
			topic: "T",
			want:  StageScript,
		},
		{
			name: "synthesis failure",
			build: func() *Pipeline {
				return New(&fakeScripter{script: "s"}, &fakeSynth{err: tts.ErrNetwork}, &fakePlayer{}, newFakeLibrary())
			},
			topic: "T",
			want:  StageSynthesis,
		},
		{
			name: "encode failure",
			build: func() *Pipeline {
				bad := tts.Result{Data: []byte{1}, Encoding: tts.EncodingPCM} // missing format fields
				return New(&fakeScripter{script: "s"}, &fakeSynth{result: bad}, &fakePlayer{}, newFakeLibrary())
			},
			topic: "T",
			want:  StageEncode,
		},
		{
			name: "load failure",
			build: func() *Pipeline {
				pl := &fakePlayer{loadErr: player.ErrDecode}
				return New(&fakeScripter{script: "s"}, &fakeSynth{result: pcmOK}, pl, newFakeLibrary())
			},
			topic: "T",
			want:  StageLoad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.build()
			_, err := p.Generate(context.Background(), Request{Topic: tt.topic})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := FailedStage(err); got != tt.want {
				t.Errorf("FailedStage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPipeline_UnderlyingErrorKindSurvivesTagging(t *testing.T) {
	p := New(&fakeScripter{err: llm.ErrAuth}, &fakeSynth{}, &fakePlayer{}, newFakeLibrary())
	_, err := p.Generate(context.Background(), Request{Topic: "T"})
	if !errors.Is(err, llm.ErrAuth) {
		t.Errorf("underlying kind lost: %v", err)
	}
}

func TestPipeline_HeadlinesFeedThePrompt(t *testing.T) {
	scripter := &fakeScripter{script: "s"}
	heads := &fakeHeadlines{headlines: []news.Headline{
		{Title: "Chips rally", FeedTitle: "Feed"},
	}}
	p := New(scripter, &fakeSynth{result: pcmResult([]byte{1, 2})}, &fakePlayer{}, newFakeLibrary(),
		WithHeadlines(heads, 3))

	if _, err := p.Generate(context.Background(), Request{Topic: "T"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(scripter.lastReq.Headlines) != 1 || scripter.lastReq.Headlines[0] != "Chips rally（Feed）" {
		t.Errorf("headlines not forwarded: %+v", scripter.lastReq.Headlines)
	}
}

func TestPipeline_SaveCurrent(t *testing.T) {
	pl := &fakePlayer{duration: 12.5}
	lib := newFakeLibrary()
	hist := &fakeHistory{}
	p := New(&fakeScripter{script: "s"}, &fakeSynth{result: pcmResult([]byte{1, 2})}, pl, lib,
		WithHistory(hist))

	if _, err := p.Generate(context.Background(), Request{Topic: "Markets"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	b, err := p.SaveCurrent()
	if err != nil {
		t.Fatalf("SaveCurrent failed: %v", err)
	}
	if b.Topic != "Markets" {
		t.Errorf("saved topic = %q", b.Topic)
	}
	if p.Current().BriefingID != b.ID {
		t.Errorf("current not linked to saved briefing")
	}

	// The exact loaded bytes must be what gets stored.
	stored, err := lib.ReadAudio(b.ID)
	if err != nil {
		t.Fatalf("ReadAudio failed: %v", err)
	}
	if string(stored) != string(pl.LastLoaded()) {
		t.Error("stored audio differs from loaded audio")
	}

	wantEvents := []history.Event{history.EventGenerated, history.EventSaved}
	if len(hist.events) != 2 || hist.events[0] != wantEvents[0] || hist.events[1] != wantEvents[1] {
		t.Errorf("history events = %v, want %v", hist.events, wantEvents)
	}
}

func TestPipeline_SaveCurrentWithoutLoadFails(t *testing.T) {
	p := New(&fakeScripter{}, &fakeSynth{}, &fakePlayer{}, newFakeLibrary())
	if _, err := p.SaveCurrent(); FailedStage(err) != StageStore {
		t.Errorf("expected store-stage error, got %v", err)
	}
}

func TestPipeline_SaveCurrentAfterFailedGenerateFails(t *testing.T) {
	scripter := &fakeScripter{script: "s"}
	pl := &fakePlayer{}
	lib := newFakeLibrary()
	p := New(scripter, &fakeSynth{result: pcmResult([]byte{1, 2})}, pl, lib)

	if _, err := p.Generate(context.Background(), Request{Topic: "First"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// A failed generation invalidates the previous clip; saving afterwards
	// must not persist the first briefing under a placeholder topic.
	scripter.err = llm.ErrProvider
	if _, err := p.Generate(context.Background(), Request{Topic: "Second"}); err == nil {
		t.Fatal("expected generation failure")
	}

	if _, err := p.SaveCurrent(); FailedStage(err) != StageStore {
		t.Errorf("expected store-stage error, got %v", err)
	}
	if len(lib.added) != 0 {
		t.Errorf("no briefing may be stored after a failed generation, got %+v", lib.added)
	}
}

func TestPipeline_Replay(t *testing.T) {
	pl := &fakePlayer{}
	lib := newFakeLibrary()
	b, _ := lib.Add("Saved", []byte("wav-bytes"))

	p := New(&fakeScripter{}, &fakeSynth{}, pl, lib)
	got, err := p.Replay(b.ID)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("unexpected briefing: %+v", got)
	}
	if len(pl.loaded) != 1 || string(pl.loaded[0]) != "wav-bytes" {
		t.Errorf("stored audio not loaded: %v", pl.loaded)
	}
	if pl.playCount != 1 {
		t.Errorf("replay must autoplay, playCount = %d", pl.playCount)
	}
	if p.Current().Topic != "Saved" || p.Current().BriefingID != b.ID {
		t.Errorf("current not updated: %+v", p.Current())
	}
}

func TestPipeline_ReplayUnknownID(t *testing.T) {
	p := New(&fakeScripter{}, &fakeSynth{}, &fakePlayer{}, newFakeLibrary())
	_, err := p.Replay("missing")
	if FailedStage(err) != StageStore {
		t.Errorf("expected store-stage error, got %v", err)
	}
}

func TestPipeline_DeleteClearsCurrentLink(t *testing.T) {
	pl := &fakePlayer{}
	lib := newFakeLibrary()
	p := New(&fakeScripter{script: "s"}, &fakeSynth{result: pcmResult([]byte{1, 2})}, pl, lib)

	if _, err := p.Generate(context.Background(), Request{Topic: "T"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	b, err := p.SaveCurrent()
	if err != nil {
		t.Fatalf("SaveCurrent failed: %v", err)
	}

	res, err := p.Delete(b.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !res.IndexRemoved {
		t.Error("expected index removal")
	}
	if p.Current().BriefingID != "" {
		t.Error("current must drop the link to a deleted briefing")
	}
}

func TestPipeline_HistoryFailureIsNonFatal(t *testing.T) {
	hist := &fakeHistory{err: errors.New("disk full")}
	p := New(&fakeScripter{script: "s"}, &fakeSynth{result: pcmResult([]byte{1, 2})}, &fakePlayer{},
		newFakeLibrary(), WithHistory(hist))

	if _, err := p.Generate(context.Background(), Request{Topic: "T"}); err != nil {
		t.Fatalf("history failure must not fail the pipeline: %v", err)
	}
}
