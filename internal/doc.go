// Package internal holds helpers private to authcore.
//
// Sub-packages:
//
//   - flows: orchestration of every Engine operation over explicit dependencies
//   - jobs: startup jobs with status persisted in Redis
//   - settings: process settings from a TOML file and the environment
package internal
