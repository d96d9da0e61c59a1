package sorel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/anicoll/sorel-connect/internal/pkg/config"
	"github.com/anicoll/sorel-connect/internal/pkg/model"
	"github.com/anicoll/sorel-connect/internal/pkg/store"
)

const (
	testInstallation = "abc123"
	loginPath        = "/nabto/hosted_plugin/login/execute"
	sessionCookie    = "SESSION"
)

// fakeDevice answers like the portal of one installation. Channels without a
// value report "--".
type fakeDevice struct {
	mu sync.Mutex

	values map[string]string
	bodies map[string]string
	status map[string]int

	LoginBody   string
	LoginStatus int
	// HTMLResponses is the number of upcoming value requests answered with a login page.
	HTMLResponses int
	// GetFunc, when set, replaces the device for every request.
	GetFunc func(target string, cookies []*http.Cookie) (*Response, error)

	logins   int
	requests map[string]int
	cookies  [][]*http.Cookie
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		values:    map[string]string{},
		bodies:    map[string]string{},
		status:    map[string]int{},
		requests:  map[string]int{},
		LoginBody: `({"session_key":"k1","email":"me@example.com"})`,
	}
}

func key(resource model.Resource, id int) string {
	return fmt.Sprintf("%s/%d", resource, id)
}

func (d *fakeDevice) Set(resource model.Resource, id int, raw string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[key(resource, id)] = raw
}

// SetBody makes the channel answer with body verbatim.
func (d *fakeDevice) SetBody(resource model.Resource, id int, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bodies[key(resource, id)] = body
}

func (d *fakeDevice) SetStatus(resource model.Resource, id int, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status[key(resource, id)] = status
}

func (d *fakeDevice) Logins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logins
}

func (d *fakeDevice) Requests(resource model.Resource, id int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[key(resource, id)]
}

func (d *fakeDevice) Get(_ context.Context, target string, cookies []*http.Cookie) (*Response, error) {
	if d.GetFunc != nil {
		return d.GetFunc(target, cookies)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if u.Path == loginPath {
		d.logins++
		if d.LoginStatus != 0 {
			return &Response{StatusCode: d.LoginStatus}, nil
		}
		return &Response{
			StatusCode: http.StatusOK,
			Cookies:    []*http.Cookie{{Name: sessionCookie, Value: "s" + strconv.Itoa(d.logins)}},
			Body:       []byte(d.LoginBody),
		}, nil
	}

	resource := strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), ".json")
	id, err := strconv.Atoi(u.Query().Get("id"))
	if err != nil {
		return nil, err
	}
	k := resource + "/" + strconv.Itoa(id)
	d.requests[k]++
	d.cookies = append(d.cookies, cookies)

	if d.HTMLResponses > 0 {
		d.HTMLResponses--
		return &Response{StatusCode: http.StatusOK, Body: []byte("<!DOCTYPE html><html>login</html>")}, nil
	}
	if status, ok := d.status[k]; ok {
		if status < 0 {
			return nil, errors.New("connection reset by peer")
		}
		return &Response{StatusCode: status}, nil
	}
	if body, ok := d.bodies[k]; ok {
		return &Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
	}
	raw, ok := d.values[k]
	if !ok {
		raw = disabledValue
	}
	return &Response{StatusCode: http.StatusOK, Body: valueBody(raw)}, nil
}

func valueBody(raw string) []byte {
	data, _ := json.Marshal(map[string]any{
		"response": map[string]any{"val": raw},
	})
	return data
}

func testConfig() *config.SorelConfig {
	return &config.SorelConfig{
		ID:         testInstallation,
		Email:      "me@example.com",
		Password:   "s3cret&pass",
		HostFormat: "https://%s.sorel.test",
	}
}

func newTestClient(t *testing.T, d *fakeDevice, st store.Store, opts ...Option) *Client {
	t.Helper()
	if st == nil {
		st = &store.Memory{}
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(testConfig(), d, st, opts...)
}

// fullDevice has three sensors, power with day and week energy and relays 1, 3 and 5.
func fullDevice() *fakeDevice {
	d := newFakeDevice()
	d.Set(model.ResourceSensors, 1, "21°C")
	d.Set(model.ResourceSensors, 2, "-4°C")
	d.Set(model.ResourceSensors, 3, "65°C")
	d.Set(model.ResourceHeat, int(ChannelActual), "1.5kW")
	d.Set(model.ResourceHeat, int(ChannelDay), "12.5kWh")
	d.Set(model.ResourceHeat, int(ChannelWeek), "2MWh")
	d.Set(model.ResourceRelays, 1, "1_ON")
	d.Set(model.ResourceRelays, 2, "pump")
	d.Set(model.ResourceRelays, 3, "3_40%")
	d.Set(model.ResourceRelays, 5, "5_OFF")
	return d
}
