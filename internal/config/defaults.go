package config

// DefaultConfigYAML is the starter config written by `thelocalai init`.
// Values mirror Default(); the file exists so users have something to
// edit rather than hunting for knob names.
const DefaultConfigYAML = `# TheLocalAI configuration.
# Environment variables are expanded: use ${HOME} etc.

data_dir: data
log_level: info

ollama:
  url: http://127.0.0.1:11434
  default_model: gemma3:4b
  connect_timeout_sec: 5
  read_timeout_sec: 240
  retries: 2
  num_predict: 320
  temperature: 0.25

web:
  enabled: true
  # SearXNG-compatible search endpoint. Leave empty to disable search.
  search_url: ""
  timeout_sec: 20
  max_results: 10
  max_pages_to_read: 5
  max_chars_per_page: 14000
  fetch_retries: 1
  blocked_domains:
    - researchgate.net
    - facebook.com
    - instagram.com
    - tiktok.com
    - x.com
    - twitter.com
    - medium.com

memory:
  max_rows: 2000

chat:
  max_user_chars: 4000
  max_prompt_chars: 52000
  memory_cap_chars: 6000
  web_cap_chars: 18000
  watchdog_sec: 300
  poll_interval_ms: 80
  poll_batch: 10
  watchdog_tick_sec: 1

voice:
  enabled: false
  bridge_url: ""

telemetry:
  enabled: false
  broker_url: ""
  topic_prefix: thelocalai
  interval_sec: 5

instance:
  host: 127.0.0.1
  port: 48231
`
