package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/whatsapp-campaigns/internal/controller"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/repository"
	"github.com/unclebandit/whatsapp-campaigns/internal/service"
)

// --- Mock Repositories ---

type MockCampaignRepoForPagination struct {
	repository.CampaignRepositoryInterface
	campaigns []*model.Campaign
}

func (m *MockCampaignRepoForPagination) ListCampaigns(_ context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	var filtered []*model.Campaign
	for _, c := range m.campaigns {
		if channel != "" && c.Channel != channel {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		filtered = append(filtered, c)
	}
	total := len(filtered)

	// Simulate pagination
	start := offset
	end := offset + limit
	if start > total {
		return []*model.Campaign{}, total, nil
	}
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func newRouter(store *repository.MemoryStore) (http.Handler, *repository.MemoryStore) {
	svc := &service.CampaignService{
		CampaignRepo: store,
		QueueRepo:    store,
		LeadRepo:     store,
		Reconciler:   &service.StatsReconciler{Queue: store, Campaigns: store},
	}
	ctrl := &controller.CampaignController{CampaignService: svc}

	r := chi.NewRouter()
	r.Post("/campaigns", ctrl.CreateCampaign)
	r.Get("/campaigns", ctrl.ListCampaigns)
	r.Get("/campaigns/{id}", ctrl.GetCampaignDetails)
	r.Post("/campaigns/{id}/recipients", ctrl.EnqueueRecipients)
	r.Post("/campaigns/{id}/preview", ctrl.PersonalizedPreview)
	return r, store
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- Test Functions ---

func TestPersonalizedPreviewHandler(t *testing.T) {
	h, store := newRouter(repository.NewMemoryStore())
	c := &model.Campaign{Name: "promo", Content: "Oi {{nome}}, veja {{produto}} em {{cidade}}!"}
	require.NoError(t, store.Create(context.Background(), c))

	w := do(t, h, "POST", "/campaigns/"+strconv.Itoa(c.ID)+"/preview", map[string]interface{}{
		"name":  "Alice",
		"phone": "5511911112222",
		"data":  map[string]string{"produto": "Tênis", "cidade": "Salvador"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Rendered service.RenderedParts `json:"rendered"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "Oi Alice, veja Tênis em Salvador!", res.Rendered.Content)
}

func TestListCampaignsPagination(t *testing.T) {
	// --- Seed only campaigns that match the filter ---
	totalCampaigns := 25
	campaigns := []*model.Campaign{}
	for i := 1; i <= totalCampaigns; i++ {
		campaigns = append(campaigns, &model.Campaign{
			ID:      i,
			Name:    "Campaign " + strconv.Itoa(i),
			Channel: model.ChannelWhatsApp,
			Status:  model.CampaignDraft,
		})
	}

	// Initialize repo, service, controller
	repo := &MockCampaignRepoForPagination{campaigns: campaigns}
	svc := &service.CampaignService{CampaignRepo: repo}
	ctrl := &controller.CampaignController{CampaignService: svc}

	pageSize := 10
	seen := map[int]bool{}

	// Calculate total pages
	totalPages := (totalCampaigns + pageSize - 1) / pageSize

	for page := 1; page <= totalPages; page++ {
		req := httptest.NewRequest(
			"GET",
			"/campaigns?page="+strconv.Itoa(page)+
				"&page_size="+strconv.Itoa(pageSize)+
				"&channel=WhatsApp&status=Draft",
			nil,
		)
		w := httptest.NewRecorder()

		ctrl.ListCampaigns(w, req)
		resp := w.Result()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var res struct {
			Data       []model.Campaign `json:"data"`
			Pagination struct {
				Page       int `json:"page"`
				PageSize   int `json:"page_size"`
				TotalCount int `json:"total_count"`
			} `json:"pagination"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		// --- Check pagination info ---
		if res.Pagination.Page != page {
			t.Errorf("expected page %d, got %d", page, res.Pagination.Page)
		}
		if res.Pagination.PageSize != pageSize {
			t.Errorf("expected page size %d, got %d", pageSize, res.Pagination.PageSize)
		}
		if res.Pagination.TotalCount != totalCampaigns {
			t.Errorf("expected total count %d, got %d", totalCampaigns, res.Pagination.TotalCount)
		}

		// --- Check data ---
		for _, c := range res.Data {
			if seen[c.ID] {
				t.Errorf("duplicate campaign ID %d across pages", c.ID)
			}
			seen[c.ID] = true

			if c.Channel != model.ChannelWhatsApp {
				t.Errorf("expected channel WhatsApp, got %s", c.Channel)
			}
			if c.Status != model.CampaignDraft {
				t.Errorf("expected status Draft, got %s", c.Status)
			}
		}
	}

	// --- Ensure all campaigns are returned ---
	if len(seen) != totalCampaigns {
		t.Errorf("expected %d unique campaigns, got %d", totalCampaigns, len(seen))
	}
}

func TestCreateCampaignHandler(t *testing.T) {
	h, _ := newRouter(repository.NewMemoryStore())

	w := do(t, h, "POST", "/campaigns", map[string]interface{}{"name": "Natal", "content": "Feliz Natal {{name}}"})
	require.Equal(t, http.StatusCreated, w.Code)
	var c model.Campaign
	require.NoError(t, json.NewDecoder(w.Body).Decode(&c))
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Equal(t, model.DefaultDelaySeconds, c.DelaySeconds)

	w = do(t, h, "POST", "/campaigns", map[string]interface{}{"content": "sem nome"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest("POST", "/campaigns", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueAndDetailsHandlers(t *testing.T) {
	h, store := newRouter(repository.NewMemoryStore())
	c := &model.Campaign{Name: "promo", Content: "oi"}
	require.NoError(t, store.Create(context.Background(), c))
	leadID := store.AddLead(model.Lead{Name: "Lia", Phone: "5511955554444"})
	path := "/campaigns/" + strconv.Itoa(c.ID)

	w := do(t, h, "POST", path+"/recipients", map[string]interface{}{
		"lead_ids":   []int{leadID},
		"recipients": []map[string]string{{"name": "Rui", "phone": "5511933332222"}},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var res service.EnqueueResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 2, res.Queued)

	w = do(t, h, "GET", path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details struct {
		Name  string              `json:"name"`
		Stats model.CampaignStats `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&details))
	assert.Equal(t, "promo", details.Name)
	assert.Equal(t, 2, details.Stats.Pending)
	assert.Equal(t, 2, details.Stats.Total)
}

func TestCampaignHandlers_ErrorMapping(t *testing.T) {
	h, store := newRouter(repository.NewMemoryStore())
	ctx := context.Background()

	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/campaigns/404", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/campaigns/abc", nil).Code)

	c := &model.Campaign{Name: "done", Content: "oi"}
	require.NoError(t, store.Create(ctx, c))
	_, err := store.MarkCompleted(ctx, c.ID, c.CreatedAt)
	require.NoError(t, err)

	w := do(t, h, "POST", "/campaigns/"+strconv.Itoa(c.ID)+"/recipients", map[string]interface{}{
		"recipients": []map[string]string{{"phone": "1"}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}
