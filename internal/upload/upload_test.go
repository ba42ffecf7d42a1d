package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeStore keeps upload requests in a map, standing in for the PostgreSQL
// store.
type fakeStore struct {
	requests map[string]*Request
	nextID   int
}

func newFakeStore(reqs ...*Request) *fakeStore {
	fs := &fakeStore{requests: make(map[string]*Request), nextID: 100}
	for _, r := range reqs {
		fs.requests[r.Token] = r
	}
	return fs
}

func (f *fakeStore) Create(_ context.Context, r *Request) error {
	f.nextID++
	r.ID = f.nextID
	r.CreatedAt = time.Now().UTC()
	f.requests[r.Token] = r
	return nil
}

func (f *fakeStore) ByToken(_ context.Context, token string) (*Request, error) {
	return f.requests[token], nil
}

func (f *fakeStore) byID(id int) *Request {
	for _, r := range f.requests {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (f *fakeStore) MarkUploaded(_ context.Context, id int, at time.Time, filename, path string) error {
	r := f.byID(id)
	if r == nil {
		return fmt.Errorf("no request %d", id)
	}
	r.IsUsed = true
	r.UploadedAt = at
	r.ImageFilename = filename
	r.ImagePath = path
	return nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, id int, analysis string) error {
	r := f.byID(id)
	if r == nil {
		return fmt.Errorf("no request %d", id)
	}
	r.ImageAnalysis = analysis
	return nil
}

type fakeMailer struct {
	calls              int
	to, url, appliance string
	err                error
}

func (m *fakeMailer) SendUploadLink(_ context.Context, to, uploadURL, applianceType string) error {
	m.calls++
	m.to, m.url, m.appliance = to, uploadURL, applianceType
	return m.err
}

type fakeAnalyzer struct {
	analysis  string
	err       error
	gotBytes  int
	gotMedia  string
	gotIssue  string
	gotAppl   string
	callCount int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, image []byte, mediaType, applianceType, issue string) (string, error) {
	a.callCount++
	a.gotBytes = len(image)
	a.gotMedia = mediaType
	a.gotAppl = applianceType
	a.gotIssue = issue
	if a.err != nil {
		return "", a.err
	}
	return a.analysis, nil
}

func TestCreateRequest(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	mailer := &fakeMailer{}
	svc := NewService(Config{
		Store:   store,
		Mailer:  mailer,
		BaseURL: "https://assist.example.com/",
		TTL:     2 * time.Hour,
	})

	before := time.Now().UTC()
	r, err := svc.CreateRequest(context.Background(), 7, "amy@example.com", "washer", "won't drain", "CA1234")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if r.ID == 0 {
		t.Error("expected assigned id")
	}
	if _, err := uuid.Parse(r.Token); err != nil {
		t.Errorf("token %q is not a UUID: %v", r.Token, err)
	}
	wantExpiry := before.Add(2 * time.Hour)
	if r.ExpiresAt.Before(wantExpiry) || r.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expires at %v, want about %v", r.ExpiresAt, wantExpiry)
	}
	if r.EmailSentTo != "amy@example.com" || r.CallSID != "CA1234" {
		t.Errorf("request fields = %+v", r)
	}

	if mailer.calls != 1 {
		t.Fatalf("mailer calls = %d, want 1", mailer.calls)
	}
	if mailer.to != "amy@example.com" {
		t.Errorf("mail to = %q", mailer.to)
	}
	if want := "https://assist.example.com/upload/" + r.Token; mailer.url != want {
		t.Errorf("mail url = %q, want %q", mailer.url, want)
	}
	if mailer.appliance != "washer" {
		t.Errorf("mail appliance = %q", mailer.appliance)
	}
}

func TestCreateRequest_MailFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{
		Store:   newFakeStore(),
		Mailer:  &fakeMailer{err: fmt.Errorf("smtp down")},
		BaseURL: "https://assist.example.com",
	})

	r, err := svc.CreateRequest(context.Background(), 1, "amy@example.com", "", "", "")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if r.Token == "" {
		t.Error("expected a token despite the mail failure")
	}
}

func TestServiceDefaults(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{Store: newFakeStore(), BaseURL: "http://x"})
	if svc.ttl != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", svc.ttl)
	}
	if svc.maxBytes != 10<<20 {
		t.Errorf("maxBytes = %d, want 10 MiB", svc.maxBytes)
	}
	if svc.dir != "uploads/images" {
		t.Errorf("dir = %q", svc.dir)
	}
	if _, ok := svc.mailer.(LogMailer); !ok {
		t.Errorf("mailer = %T, want LogMailer", svc.mailer)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Hour)

	cases := []struct {
		name  string
		req   *Request
		token string
		want  string
	}{
		{"unknown token", nil, "nope", "Invalid upload link"},
		{"already used", &Request{Token: "t1", IsUsed: true, ExpiresAt: future}, "t1", "This upload link has already been used"},
		{"expired", &Request{Token: "t2", ExpiresAt: past}, "t2", "This upload link has expired"},
		{"good", &Request{Token: "t3", ExpiresAt: future}, "t3", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			if tc.req != nil {
				store.requests[tc.req.Token] = tc.req
			}
			svc := NewService(Config{Store: store, BaseURL: "http://x"})

			got, err := svc.Validate(context.Background(), tc.token)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if got != tc.want {
				t.Errorf("Validate(%q) = %q, want %q", tc.token, got, tc.want)
			}
		})
	}
}

func TestSaveImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	req := &Request{ID: 5, Token: "tok123", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	store := newFakeStore(req)
	svc := NewService(Config{Store: store, BaseURL: "http://x", Dir: dir})

	errText, err := svc.SaveImage(context.Background(), "tok123", []byte("png-bytes"), "fridge.png")
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if errText != "" {
		t.Fatalf("errText = %q, want empty", errText)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "tok123_") || !strings.HasSuffix(name, ".png") {
		t.Errorf("stored file name = %q", name)
	}

	if !req.IsUsed {
		t.Error("request not marked used")
	}
	if req.ImageFilename != name {
		t.Errorf("ImageFilename = %q, want %q", req.ImageFilename, name)
	}
	if req.ImagePath != filepath.Join(dir, name) {
		t.Errorf("ImagePath = %q", req.ImagePath)
	}
	if req.UploadedAt.IsZero() {
		t.Error("UploadedAt not set")
	}
}

func TestSaveImage_DefaultExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	req := &Request{ID: 1, Token: "tok", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	svc := NewService(Config{Store: newFakeStore(req), BaseURL: "http://x", Dir: dir})

	if _, err := svc.SaveImage(context.Background(), "tok", []byte("x"), "photo"); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if !strings.HasSuffix(req.ImageFilename, ".jpg") {
		t.Errorf("ImageFilename = %q, want .jpg suffix", req.ImageFilename)
	}
}

func TestSaveImage_RejectsOversize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	req := &Request{ID: 1, Token: "tok", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	svc := NewService(Config{Store: newFakeStore(req), BaseURL: "http://x", Dir: dir, MaxBytes: 1 << 20})

	errText, err := svc.SaveImage(context.Background(), "tok", make([]byte, 1<<20+1), "big.jpg")
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if want := "File too large. Maximum size is 1MB."; errText != want {
		t.Errorf("errText = %q, want %q", errText, want)
	}
	if req.IsUsed {
		t.Error("oversize upload must not burn the link")
	}
}

func TestSaveImage_UsedLink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	req := &Request{ID: 1, Token: "tok", IsUsed: true, ExpiresAt: time.Now().UTC().Add(time.Hour)}
	svc := NewService(Config{Store: newFakeStore(req), BaseURL: "http://x", Dir: dir})

	errText, err := svc.SaveImage(context.Background(), "tok", []byte("x"), "a.jpg")
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if errText != "This upload link has already been used" {
		t.Errorf("errText = %q", errText)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("refused upload still wrote %d files", len(entries))
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tok_20260825_120000.webp")
	if err := os.WriteFile(path, []byte("webp-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	req := &Request{
		ID:               9,
		Token:            "tok",
		ImagePath:        path,
		ApplianceType:    "washer",
		IssueDescription: "leaking from the bottom",
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}
	analyzer := &fakeAnalyzer{analysis: "Front-load washer with a worn door seal."}
	svc := NewService(Config{Store: newFakeStore(req), Vision: analyzer, BaseURL: "http://x"})

	analysis, errText, err := svc.Analyze(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if errText != "" {
		t.Fatalf("errText = %q", errText)
	}
	if analysis != "Front-load washer with a worn door seal." {
		t.Errorf("analysis = %q", analysis)
	}

	if analyzer.gotBytes != len("webp-bytes") {
		t.Errorf("analyzer got %d bytes", analyzer.gotBytes)
	}
	if analyzer.gotMedia != "image/webp" {
		t.Errorf("media type = %q, want image/webp", analyzer.gotMedia)
	}
	if analyzer.gotAppl != "washer" || analyzer.gotIssue != "leaking from the bottom" {
		t.Errorf("analyzer context = (%q, %q)", analyzer.gotAppl, analyzer.gotIssue)
	}
	if req.ImageAnalysis != analysis {
		t.Errorf("stored analysis = %q", req.ImageAnalysis)
	}
}

func TestAnalyze_NoImage(t *testing.T) {
	t.Parallel()

	req := &Request{ID: 1, Token: "tok", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	svc := NewService(Config{Store: newFakeStore(req), Vision: &fakeAnalyzer{}, BaseURL: "http://x"})

	for _, token := range []string{"tok", "unknown"} {
		_, errText, err := svc.Analyze(context.Background(), token)
		if err != nil {
			t.Fatalf("Analyze(%q): %v", token, err)
		}
		if errText != "No image found for this upload" {
			t.Errorf("Analyze(%q) errText = %q", token, errText)
		}
	}
}

func TestAnalyze_VisionError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tok.jpg")
	if err := os.WriteFile(path, []byte("jpg"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	req := &Request{ID: 1, Token: "tok", ImagePath: path, ExpiresAt: time.Now().UTC().Add(time.Hour)}
	svc := NewService(Config{
		Store:   newFakeStore(req),
		Vision:  &fakeAnalyzer{err: fmt.Errorf("api down")},
		BaseURL: "http://x",
	})

	_, _, err := svc.Analyze(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected error from failing analyzer")
	}
	if req.ImageAnalysis != "" {
		t.Errorf("failed analysis must not be stored, got %q", req.ImageAnalysis)
	}
}

func TestMediaTypeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ext  string
		want string
	}{
		{".jpg", "image/jpeg"},
		{".jpeg", "image/jpeg"},
		{".JPG", "image/jpeg"},
		{".png", "image/png"},
		{".gif", "image/gif"},
		{".webp", "image/webp"},
		{".heic", "image/jpeg"},
		{"", "image/jpeg"},
	}
	for _, tc := range cases {
		if got := mediaTypeFor(tc.ext); got != tc.want {
			t.Errorf("mediaTypeFor(%q) = %q, want %q", tc.ext, got, tc.want)
		}
	}
}

func TestVisionPrompt(t *testing.T) {
	t.Parallel()

	got := visionPrompt("washer", "leaking from the bottom")
	if !strings.HasPrefix(got, "You are an expert appliance technician analyzing an image."+
		" The customer reports this is a washer."+
		" The reported issue is: leaking from the bottom") {
		t.Errorf("prompt preamble wrong:\n%s", got)
	}
	for _, want := range []string{
		"1. Confirmation of the appliance type (or identification if not provided)",
		"2. Any visible issues, damage, or abnormalities",
		"3. Specific observations that could help with diagnosis",
		"4. Recommendations for the technician or customer",
		"explain in terms a homeowner can understand.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	bare := visionPrompt("", "")
	if strings.Contains(bare, "The customer reports") || strings.Contains(bare, "The reported issue") {
		t.Errorf("bare prompt carries context it should not:\n%s", bare)
	}
}

func TestUploadURL_TrimsTrailingSlash(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{Store: newFakeStore(), BaseURL: "https://assist.example.com/"})
	if got := svc.UploadURL("abc"); got != "https://assist.example.com/upload/abc" {
		t.Errorf("UploadURL = %q", got)
	}
}
