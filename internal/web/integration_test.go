package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hliang-dev/splitbill/internal/db"
	"github.com/hliang-dev/splitbill/internal/docintel"
	"github.com/hliang-dev/splitbill/internal/metrics"
	"github.com/hliang-dev/splitbill/internal/service"
	"github.com/hliang-dev/splitbill/internal/store"
	"github.com/hliang-dev/splitbill/internal/web"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
// http.DetectContentType identifies JPEG from the leading 0xFF 0xD8 bytes.
var minimalJPEG = func() []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}()

// recordingAnalyzer captures the bytes passed to it and returns a
// pre-configured result.
type recordingAnalyzer struct {
	mu        sync.Mutex
	lastBytes []byte
	result    *docintel.AnalyzeResult
	err       error
}

func (a *recordingAnalyzer) AnalyzeReceipt(_ context.Context, imageData []byte, _ string) (*docintel.AnalyzeResult, error) {
	a.mu.Lock()
	a.lastBytes = imageData
	a.mu.Unlock()
	return a.result, a.err
}

// memObjectStore is an in-memory objstore.ObjectStore.
type memObjectStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	mimes   map[string]string
	counter int
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{
		data:  make(map[string][]byte),
		mimes: make(map[string]string),
	}
}

func (m *memObjectStore) Save(_ context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	key := fmt.Sprintf("%s/%d", prefix, m.counter)
	m.data[key] = data
	m.mimes[key] = mimeType
	return key, nil
}

func (m *memObjectStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.mimes[key], nil
}

func (m *memObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.mimes, key)
	return nil
}

// newTestServer sets up a real web.Server backed by in-memory SQLite, the
// analyzer stub, and an in-memory object store.
func newTestServer(t *testing.T, analyzer docintel.Analyzer) (*httptest.Server, *memObjectStore) {
	t.Helper()
	database, err := db.OpenForTesting()
	if err != nil {
		t.Fatalf("OpenForTesting: %v", err)
	}

	billStore := store.NewBillStore(database)
	itemStore := store.NewItemStore(database)
	communityStore := store.NewCommunityStore(database)
	objects := newMemObjectStore()
	m := metrics.New()

	server := web.NewServer(
		service.NewIngestService(objects, analyzer, billStore, m),
		service.NewBillService(billStore, itemStore),
		service.NewCommunityService(communityStore),
		billStore,
		objects,
		database,
		m,
		slog.Default(),
	)
	srv := httptest.NewServer(server)
	t.Cleanup(func() {
		srv.Close()
		_ = database.Close()
	})
	return srv, objects
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func createCommunity(t *testing.T, srv *httptest.Server, name, ownerID string) string {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/api/communities", map[string]any{"name": name, "userId": ownerID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/communities status %d: %v", resp.StatusCode, body)
	}
	return body["id"].(string)
}

func groceryResult() *docintel.AnalyzeResult {
	return &docintel.AnalyzeResult{
		ModelID: "prebuilt-receipt",
		Documents: []docintel.Document{{
			DocType: "receipt.retailMeal",
			Fields: docintel.Fields{
				MerchantName: &docintel.StringField{Value: "Tesco"},
				Items: []docintel.ItemField{
					{Description: &docintel.StringField{Value: "Milk"}, TotalPrice: &docintel.CurrencyField{Amount: 1.20}},
					{Description: &docintel.StringField{Value: "Bread"}, TotalPrice: &docintel.CurrencyField{Amount: 2.30}},
				},
				Total: &docintel.CurrencyField{Amount: 3.50, CurrencyCode: "GBP"},
				Seen:  []string{"MerchantName", "Items", "Total"},
			},
		}},
	}
}

// buildMultipartBody creates a multipart/form-data body with an "image" field
// and the uploader's userId.
func buildMultipartBody(t *testing.T, imageData []byte, userID string) (body *bytes.Buffer, contentType string) {
	t.Helper()
	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("userId", userID); err != nil {
		t.Fatalf("write userId field: %v", err)
	}
	fw, err := w.CreateFormFile("image", "receipt.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(imageData); err != nil {
		t.Fatalf("write image data: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func uploadReceipt(t *testing.T, srv *httptest.Server, communityID, userID string) string {
	t.Helper()
	body, contentType := buildMultipartBody(t, minimalJPEG, userID)
	resp, err := http.Post(srv.URL+"/api/communities/"+communityID+"/receipts", contentType, body)
	if err != nil {
		t.Fatalf("POST receipts: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	decoded := decodeBody(t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST receipts status %d: %v", resp.StatusCode, decoded)
	}
	return decoded["storagePath"].(string)
}

func TestIntegration_UploadAndIngest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	analyzer := &recordingAnalyzer{result: groceryResult()}
	srv, _ := newTestServer(t, analyzer)
	communityID := createCommunity(t, srv, "Flat 4B", "alice")

	storagePath := uploadReceipt(t, srv, communityID, "alice")
	if !strings.HasPrefix(storagePath, "receipts/"+communityID) {
		t.Fatalf("unexpected storage path: %s", storagePath)
	}

	resp, body := postJSON(t, srv.URL+"/api/ocr", map[string]any{
		"communityId": communityID,
		"storagePath": storagePath,
		"createdBy":   "alice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/ocr status %d: %v", resp.StatusCode, body)
	}
	if body["itemsCount"].(float64) != 2 {
		t.Fatalf("expected 2 items, got %v", body["itemsCount"])
	}
	if body["total"].(float64) != 3.50 {
		t.Fatalf("expected total 3.50, got %v", body["total"])
	}
	if !bytes.Equal(analyzer.lastBytes, minimalJPEG) {
		t.Fatal("analyzer did not receive the uploaded bytes")
	}

	billID := body["billId"].(string)
	resp, err := http.Get(srv.URL + "/api/bills/" + billID)
	if err != nil {
		t.Fatalf("GET bill: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	bill := decodeBody(t, resp)
	if bill["billName"] != "Tesco Receipt" {
		t.Fatalf("expected bill name 'Tesco Receipt', got %v", bill["billName"])
	}
	if len(bill["items"].([]any)) != 2 {
		t.Fatalf("expected 2 items on the bill, got %v", bill["items"])
	}
}

func TestIntegration_OCRMissingFields(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv, _ := newTestServer(t, &recordingAnalyzer{result: groceryResult()})

	resp, body := postJSON(t, srv.URL+"/api/ocr", map[string]any{"communityId": "c1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["error"] != "Missing communityId, storagePath or createdBy" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestIntegration_OCRRejectsNonpositiveRate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv, _ := newTestServer(t, &recordingAnalyzer{result: groceryResult()})
	communityID := createCommunity(t, srv, "Flat 4B", "alice")

	for _, rate := range []float64{0, -1.5} {
		resp, body := postJSON(t, srv.URL+"/api/ocr", map[string]any{
			"communityId":          communityID,
			"storagePath":          "receipts/whatever.jpg",
			"createdBy":            "alice",
			"exchangeRateGBPToCNY": rate,
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("rate %v: expected 400, got %d", rate, resp.StatusCode)
		}
		if body["error"] != "exchangeRateGBPToCNY must be positive" {
			t.Fatalf("rate %v: unexpected error message: %v", rate, body["error"])
		}
	}
}

func TestIntegration_MetricsLabelsUseRoutePattern(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	analyzer := &recordingAnalyzer{result: groceryResult()}
	srv, _ := newTestServer(t, analyzer)
	communityID := createCommunity(t, srv, "Flat 4B", "alice")
	storagePath := uploadReceipt(t, srv, communityID, "alice")

	_, body := postJSON(t, srv.URL+"/api/ocr", map[string]any{
		"communityId": communityID,
		"storagePath": storagePath,
		"createdBy":   "alice",
	})
	billID := body["billId"].(string)

	getResp, err := http.Get(srv.URL + "/api/bills/" + billID)
	if err != nil {
		t.Fatalf("GET bill: %v", err)
	}
	_ = getResp.Body.Close()

	metricsResp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	t.Cleanup(func() { _ = metricsResp.Body.Close() })
	data, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}

	// Request counts are labeled with the registered pattern so ids never
	// show up as label values.
	if !strings.Contains(string(data), `route="GET /api/bills/{id}"`) {
		t.Fatal("expected a request count labeled with the bill route pattern")
	}
	if strings.Contains(string(data), billID) {
		t.Fatal("raw bill id leaked into metric labels")
	}
}

func TestIntegration_OCRMissingImage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv, _ := newTestServer(t, &recordingAnalyzer{result: groceryResult()})
	communityID := createCommunity(t, srv, "Flat 4B", "alice")

	resp, body := postJSON(t, srv.URL+"/api/ocr", map[string]any{
		"communityId": communityID,
		"storagePath": "receipts/nope.jpg",
		"createdBy":   "alice",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Fatal("expected an error message")
	}
}

func TestIntegration_ClaimAndSplit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	analyzer := &recordingAnalyzer{result: groceryResult()}
	srv, _ := newTestServer(t, analyzer)
	communityID := createCommunity(t, srv, "Flat 4B", "alice")
	storagePath := uploadReceipt(t, srv, communityID, "alice")

	_, body := postJSON(t, srv.URL+"/api/ocr", map[string]any{
		"communityId": communityID,
		"storagePath": storagePath,
		"createdBy":   "alice",
	})
	billID := body["billId"].(string)

	// Add bob as a participant, then have him claim the first item.
	patchReq, err := http.NewRequest(http.MethodPatch, srv.URL+"/api/bills/"+billID,
		strings.NewReader(`{"userId":"alice","toggleParticipant":"bob"}`))
	if err != nil {
		t.Fatalf("new PATCH request: %v", err)
	}
	patchReq.Header.Set("Content-Type", "application/json")
	patchResp, err := http.DefaultClient.Do(patchReq)
	if err != nil {
		t.Fatalf("PATCH bill: %v", err)
	}
	t.Cleanup(func() { _ = patchResp.Body.Close() })
	if patchResp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH bill status %d", patchResp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/api/bills/" + billID)
	if err != nil {
		t.Fatalf("GET bill: %v", err)
	}
	t.Cleanup(func() { _ = getResp.Body.Close() })
	bill := decodeBody(t, getResp)
	items := bill["items"].([]any)
	firstItem := items[0].(map[string]any)

	claimResp, claimBody := postJSON(t, srv.URL+"/api/bills/"+billID+"/items/"+firstItem["id"].(string)+"/claim",
		map[string]any{"userId": "bob"})
	if claimResp.StatusCode != http.StatusOK {
		t.Fatalf("claim status %d: %v", claimResp.StatusCode, claimBody)
	}
	if claimBody["claimedBy"] != "bob" {
		t.Fatalf("expected item claimed by bob, got %v", claimBody["claimedBy"])
	}

	// Milk (1.20) is bob's alone; Bread (2.30) splits per head.
	getResp2, err := http.Get(srv.URL + "/api/bills/" + billID)
	if err != nil {
		t.Fatalf("GET bill: %v", err)
	}
	t.Cleanup(func() { _ = getResp2.Body.Close() })
	bill = decodeBody(t, getResp2)
	shares := bill["shares"].([]any)
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}
	for _, raw := range shares {
		share := raw.(map[string]any)
		switch share["uid"] {
		case "alice":
			if got := share["totalGBP"].(float64); math.Abs(got-1.15) > 1e-9 {
				t.Fatalf("alice total = %v, want 1.15", got)
			}
		case "bob":
			if got := share["totalGBP"].(float64); math.Abs(got-2.35) > 1e-9 {
				t.Fatalf("bob total = %v, want 2.35", got)
			}
		default:
			t.Fatalf("unexpected share uid %v", share["uid"])
		}
	}
}

func TestIntegration_CommunityJoinAndRemove(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv, _ := newTestServer(t, &recordingAnalyzer{result: groceryResult()})
	communityID := createCommunity(t, srv, "Flat 4B", "alice")

	getResp, err := http.Get(srv.URL + "/api/communities/" + communityID)
	if err != nil {
		t.Fatalf("GET community: %v", err)
	}
	t.Cleanup(func() { _ = getResp.Body.Close() })
	community := decodeBody(t, getResp)
	inviteCode := community["inviteCode"].(string)

	joinResp, joinBody := postJSON(t, srv.URL+"/api/communities/join",
		map[string]any{"inviteCode": inviteCode, "userId": "bob"})
	if joinResp.StatusCode != http.StatusOK {
		t.Fatalf("join status %d: %v", joinResp.StatusCode, joinBody)
	}

	// Bob cannot remove the owner.
	req, err := http.NewRequest(http.MethodDelete,
		srv.URL+"/api/communities/"+communityID+"/members/alice?userId=bob", nil)
	if err != nil {
		t.Fatalf("new DELETE request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE member: %v", err)
	}
	t.Cleanup(func() { _ = delResp.Body.Close() })
	if delResp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", delResp.StatusCode)
	}

	// Bob can leave.
	req, err = http.NewRequest(http.MethodDelete,
		srv.URL+"/api/communities/"+communityID+"/members/bob?userId=bob", nil)
	if err != nil {
		t.Fatalf("new DELETE request: %v", err)
	}
	delResp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE member: %v", err)
	}
	t.Cleanup(func() { _ = delResp2.Body.Close() })
	if delResp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", delResp2.StatusCode)
	}
}

func TestIntegration_UploadRejectsNonImage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv, _ := newTestServer(t, &recordingAnalyzer{result: groceryResult()})
	communityID := createCommunity(t, srv, "Flat 4B", "alice")

	body, contentType := buildMultipartBody(t, []byte("definitely not an image"), "alice")
	resp, err := http.Post(srv.URL+"/api/communities/"+communityID+"/receipts", contentType, body)
	if err != nil {
		t.Fatalf("POST receipts: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestIntegration_BillImageRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	analyzer := &recordingAnalyzer{result: groceryResult()}
	srv, _ := newTestServer(t, analyzer)
	communityID := createCommunity(t, srv, "Flat 4B", "alice")
	storagePath := uploadReceipt(t, srv, communityID, "alice")

	_, body := postJSON(t, srv.URL+"/api/ocr", map[string]any{
		"communityId": communityID,
		"storagePath": storagePath,
		"createdBy":   "alice",
	})
	billID := body["billId"].(string)

	resp, err := http.Get(srv.URL + "/api/bills/" + billID + "/image")
	if err != nil {
		t.Fatalf("GET bill image: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.Equal(data, minimalJPEG) {
		t.Fatal("image bytes do not round-trip")
	}
}

func TestIntegration_Healthz(t *testing.T) {
	srv, _ := newTestServer(t, &recordingAnalyzer{result: groceryResult()})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
