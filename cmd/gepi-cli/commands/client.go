package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gepi-backend/lib/scrapers/gepi/view"

	"github.com/go-resty/resty/v2"
)

// credentials saved by `gepi-cli login`, one server at a time.
type credentials struct {
	Host  string `json:"host"`
	User  string `json:"user"`
	Token string `json:"token"`
}

func credentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gepi-cli.json"), nil
}

func loadCredentials() (credentials, error) {
	path, err := credentialsPath()
	if err != nil {
		return credentials{}, err
	}
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return credentials{}, fmt.Errorf("not logged in, run `gepi-cli login` first")
	}
	if err != nil {
		return credentials{}, err
	}
	var creds credentials
	err = json.Unmarshal(contents, &creds)
	if err != nil {
		return credentials{}, err
	}
	return creds, nil
}

func saveCredentials(creds credentials) error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}
	contents, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0600)
}

type apiResponse struct {
	Status  string             `json:"status"`
	Token   string             `json:"token"`
	Postit  *view.Postit       `json:"postit"`
	Days    []view.NotebookDay `json:"days"`
	Mails   []view.Mail        `json:"mails"`
	Content string             `json:"content"`
}

type apiClient struct {
	http  *resty.Client
	creds credentials
}

// newClient resolves the server from --host or the saved credentials.
func newClient() (apiClient, error) {
	creds, err := loadCredentials()
	if err != nil && hostFlag == "" {
		return apiClient{}, err
	}
	if hostFlag != "" {
		creds.Host = hostFlag
	}
	return apiClient{
		http:  resty.New().SetBaseURL(creds.Host),
		creds: creds,
	}, nil
}

func (c apiClient) call(ctx context.Context, op string, form map[string]string) (apiResponse, error) {
	data := map[string]string{
		"user":  c.creds.User,
		"token": c.creds.Token,
	}
	for k, v := range form {
		data[k] = v
	}

	var res apiResponse
	httpRes, err := c.http.R().
		SetContext(ctx).
		SetFormData(data).
		SetResult(&res).
		Post("/api/" + op)
	if err != nil {
		return apiResponse{}, err
	}
	if httpRes.IsError() {
		return apiResponse{}, fmt.Errorf("%s: %s", httpRes.Status(), httpRes.String())
	}
	return res, nil
}

// callOk is call for commands that cannot do anything useful with a
// non-ok status.
func (c apiClient) callOk(ctx context.Context, op string, form map[string]string) (apiResponse, error) {
	res, err := c.call(ctx, op, form)
	if err != nil {
		return apiResponse{}, err
	}
	if res.Status != "ok" {
		return apiResponse{}, fmt.Errorf("server returned status %q", res.Status)
	}
	return res, nil
}
