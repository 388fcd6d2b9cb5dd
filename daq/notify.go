// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"

	mail "gopkg.in/gomail.v2"
)

// notify sends the run-status mail when the configuration asks for
// this terminal status. Mail failures are logged, never fatal.
func (r *Run) notify(status Status, out error) {
	cfg := r.cfg.Run.Notify
	if cfg == nil {
		return
	}
	if cfg.Host == "" || cfg.Port == 0 || len(cfg.To) == 0 {
		r.msg.Printf("could not send status mail: incomplete notify configuration")
		return
	}
	if !cfg.wants(status) {
		return
	}

	body := fmt.Sprintf("run: %d\nstatus: %s\ncomment: %s\n", r.number, status, r.cfg.Run.Comment)
	if out != nil {
		body += fmt.Sprintf("error: %+v\n", out)
	}
	for _, f := range r.rec.all() {
		body += fmt.Sprintf("fault: %v\n", f)
	}

	msg := mail.NewMessage()
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	msg.SetHeader("From", from)
	msg.SetHeader("To", cfg.To...)
	msg.SetHeader("Subject", fmt.Sprintf("[pybar] run %d: %s", r.number, status))
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if err := dial.DialAndSend(msg); err != nil {
		r.msg.Printf("could not send status mail: %+v", err)
	}
}

func (cfg *NotifyConfig) wants(status Status) bool {
	if len(cfg.Statuses) == 0 {
		return true
	}
	for _, s := range cfg.Statuses {
		if Status(s) == status {
			return true
		}
	}
	return false
}
