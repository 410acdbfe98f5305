package storage

func (s *Store) SaveAPIResponseLog(l APIResponseLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`INSERT INTO api_response_logs (id, chunk_ref, run_id, template_id, template_type, template_name,
		model, temperature, prompt, response, parsed_json, parse_error, input_tokens, output_tokens, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ChunkRef, l.RunID, l.TemplateID, l.TemplateType, l.TemplateName,
		l.Model, l.Temperature, l.Prompt, l.Response, l.ParsedJSON, l.ParseError,
		l.InputTokens, l.OutputTokens, l.CostUSD, formatTime(l.CreatedAt),
	)
	return err
}

// ListAPIResponseLogs returns the audit records of a run in call order.
func (s *Store) ListAPIResponseLogs(runID string) ([]APIResponseLog, error) {
	rows, err := s.db.Query(`SELECT id, chunk_ref, run_id, template_id, template_type, template_name,
		model, temperature, prompt, response, parsed_json, parse_error, input_tokens, output_tokens, cost_usd, created_at
		FROM api_response_logs WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []APIResponseLog
	for rows.Next() {
		var l APIResponseLog
		var createdAt string
		if err := rows.Scan(&l.ID, &l.ChunkRef, &l.RunID, &l.TemplateID, &l.TemplateType, &l.TemplateName,
			&l.Model, &l.Temperature, &l.Prompt, &l.Response, &l.ParsedJSON, &l.ParseError,
			&l.InputTokens, &l.OutputTokens, &l.CostUSD, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime("created_at", createdAt)
		if err != nil {
			return nil, err
		}
		l.CreatedAt = t
		out = append(out, l)
	}
	return out, rows.Err()
}
