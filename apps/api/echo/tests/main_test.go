package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/aceportal/formflow/apps/api/echo"
	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/form"
	"github.com/aceportal/formflow/core/group"
	"github.com/aceportal/formflow/core/notification"
	"github.com/aceportal/formflow/core/user"
	"github.com/aceportal/formflow/services/channel"
	dummydb "github.com/aceportal/formflow/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server   *Server
	conf     *core.Config
	usrSvc   *user.Service
	grpSvc   *group.Service
	formSvc  *form.Service
	notifSvc *notification.Service
	email    *channel.Console
}

type quietLogger struct{}

func (quietLogger) Enable(bool)                  {}
func (quietLogger) Debug(string, ...interface{}) {}
func (quietLogger) Info(string, ...interface{})  {}
func (quietLogger) Warn(string, ...interface{})  {}
func (quietLogger) Error(string, ...interface{}) {}
func (quietLogger) Fatal(string, ...interface{}) {}

func setup(t *testing.T) testApp {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	conf := &core.Config{
		TestMode:        true,
		AppName:         "FormFlow",
		SecretKey:       "secret",
		FrontendBaseURL: "http://localhost:8080",
		Server: core.ServerConfig{
			JWTExpirationDelta: time.Hour,
		},
		Channels: core.ChannelsConfig{
			SendTimeout:         time.Second,
			ReminderMinInterval: time.Hour,
		},
	}

	usrSvc := user.NewService(dummydb.NewUserRepository(db))
	grpSvc := group.NewService(dummydb.NewGroupRepository(db), usrSvc)
	formSvc := form.NewService(dummydb.NewFormRepository(db), grpSvc, usrSvc)
	email := channel.NewConsole(notification.ChannelEmail, true)
	notifSvc := notification.NewService(
		dummydb.NewNotificationRepository(db), formSvc, usrSvc, quietLogger{}, conf,
		email, channel.NewInApp(),
	)

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     quietLogger{},
		UsrSvc:     usrSvc,
		GrpSvc:     grpSvc,
		FormSvc:    formSvc,
		NotifSvc:   notifSvc,
		Validate:   validate,
		Translator: translator,
	})
	return testApp{
		server:   server,
		conf:     conf,
		usrSvc:   usrSvc,
		grpSvc:   grpSvc,
		formSvc:  formSvc,
		notifSvc: notifSvc,
		email:    email,
	}
}

func (ta testApp) createUser(t *testing.T, name, role string) user.User {
	t.Helper()
	usr, err := ta.usrSvc.Create(context.Background(), user.NewUser{
		FullName: name,
		Username: name,
		Email:    name + "@test.cm",
		Role:     role,
		Password: "LordOfTheRings",
	})
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (ta testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(ta.conf, GetUserClaims(ta.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	t.Helper()
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	// tolerate list ordering differences
	if l1, ok := j1.([]interface{}); ok {
		if l2, ok := j2.([]interface{}); ok {
			return assert.ElementsMatch(t, l1, l2), nil
		}
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
