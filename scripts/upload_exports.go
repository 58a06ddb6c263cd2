package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Bulk uploader for measurement-station exports. Connects once, then pushes
// every *_POJAZDY.xlsx/.csv file from a directory through the upload endpoint,
// optionally confirming overwrites for batches that collide with persisted
// data.
//
// Usage: go run upload_exports.go -dir ./exports -db ruch_drogowy -user pomiar

var (
	serviceURL = flag.String("url", "http://localhost:8080", "service base URL")
	dir        = flag.String("dir", ".", "directory holding the export files")
	dbName     = flag.String("db", "", "database name")
	dbUser     = flag.String("user", "", "database user")
	dbPassword = flag.String("password", "", "database password")
	dbHost     = flag.String("host", "localhost", "database host")
	dbPort     = flag.String("port", "5432", "database port")
	overwrite  = flag.Bool("overwrite", false, "confirm overwrites for conflicting uploads")
)

var client = &http.Client{Timeout: 2 * time.Minute}

func main() {
	flag.Parse()

	if *dbName == "" || *dbUser == "" {
		fmt.Fprintln(os.Stderr, "both -db and -user are required")
		os.Exit(1)
	}

	token, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}

	files, err := listExports(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing exports failed: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("no export files found")
		return
	}

	var ok, failed int
	for _, path := range files {
		if err := uploadFile(token, path); err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", filepath.Base(path), err)
			failed++
			continue
		}
		ok++
	}

	fmt.Printf("done: %d uploaded, %d failed\n", ok, failed)
}

func connect() (string, error) {
	form := make(map[string]string)
	form["db_name"] = *dbName
	form["db_user"] = *dbUser
	form["db_password"] = *dbPassword
	form["db_host"] = *dbHost
	form["db_port"] = *dbPort

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range form {
		if err := w.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	resp, err := client.Post(*serviceURL+"/connect", w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", fmt.Errorf("no token in response: %s", body)
	}
	return payload.Token, nil
}

func listExports(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if (ext == ".xlsx" || ext == ".csv") && strings.Contains(name, "_POJAZDY.") {
			files = append(files, filepath.Join(root, name))
		}
	}
	return files, nil
}

func uploadFile(token, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, *serviceURL+"/upload", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Printf("  %s: uploaded\n", filepath.Base(path))
		return nil
	case http.StatusConflict:
		var payload struct {
			TempID string `json:"temp_id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("conflict response: %s", body)
		}
		return confirm(token, filepath.Base(path), payload.TempID)
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
}

func confirm(token, name, tempID string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"temp_id":           tempID,
		"overwrite_request": *overwrite,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, *serviceURL+"/confirm-overwrite", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confirm status %d: %s", resp.StatusCode, body)
	}

	if *overwrite {
		fmt.Printf("  %s: overwritten\n", name)
	} else {
		fmt.Printf("  %s: kept existing records, new keys inserted\n", name)
	}
	return nil
}
