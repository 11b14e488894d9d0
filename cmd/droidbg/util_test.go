package main

import (
	"errors"
	"testing"
	"time"

	"github.com/loykin/droidbg"
)

func TestResultView(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := droidbg.Result{
		Scenario:   "attach",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
	}
	r.Artifacts.PID = 1234
	r.Artifacts.Address = 0x7f0000000000
	r.Artifacts.ScriptPath = "/tmp/attach.lldb"

	v := resultView(r)
	if v["ok"] != true {
		t.Fatalf("ok = %v", v["ok"])
	}
	if v["pid"] != 1234 {
		t.Fatalf("pid = %v", v["pid"])
	}
	if v["address"] != "0x7f0000000000" {
		t.Fatalf("address = %v", v["address"])
	}
	if _, present := v["error"]; present {
		t.Fatal("error key must be absent on success")
	}
}

func TestResultViewFailure(t *testing.T) {
	r := droidbg.Result{Scenario: "attach", Err: errors.New("boom")}
	v := resultView(r)
	if v["ok"] != false {
		t.Fatalf("ok = %v", v["ok"])
	}
	if v["error"] != "boom" {
		t.Fatalf("error = %v", v["error"])
	}
	if _, present := v["pid"]; present {
		t.Fatal("pid key must be absent when unset")
	}
}
