package config

// Sample returns a starter configuration; `servermon init` writes it.
func Sample() string { return sampleConfig }

const sampleConfig = `# servermon configuration
global:
  log_level: info
  # log_file: servermon.log
  max_concurrent_checks: 10

  health:
    listen: ":8080"
    # auth_token: change-me
    # rate_limit_per_min: 120

  database:
    type: sqlite
    path: servermon.db

  # email_notifications:
  #   enabled: true
  #   events: [both]
  #   failure_threshold: 2
  #   smtp:
  #     host: smtp.example.com
  #     port: 587
  #     username: monitor@example.com
  #     # password read from SMTP_PASSWORD when omitted
  #     from_email: monitor@example.com
  #   recipients:
  #     - ops@example.com

  # webhook_notifications:
  #   enabled: true
  #   webhook:
  #     url: https://hooks.example.com/monitor
  #     headers:
  #       Authorization: Bearer change-me

endpoints:
  - name: example-website
    type: http
    interval: 60s
    http:
      url: https://example.com
      expected_status: 200
      content_match: "Example Domain"

  - name: example-api
    type: http
    interval: 30s
    http:
      url: https://api.example.com/health
      expected_status: [200, 204]
      timeout: 10s

  - name: database-server
    type: tcp
    interval: 2m
    tcp:
      host: db.example.com
      port: 5432

  - name: website-certificate
    type: tls
    interval: 24h
    tls:
      host: example.com
      cert_expiry_warning_days: 30
`
