// Package containers provides testcontainer management for integration tests.
//
// It offers helpers for starting and managing Docker containers during
// integration testing using testcontainers-go:
//
//   - MySQL 8.0 containers holding the baseline metrics schema
//nolint:misspell // Mosquitto is the official Eclipse project name
//   - Eclipse Mosquitto MQTT broker containers for pipeline consumer tests
//
// Container Lifecycle:
//
// Containers are typically managed using TestMain in integration test
// packages:
//
//	var mysqlContainer *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    var err error
//	    mysqlContainer, err = containers.NewMySQLContainer(ctx, nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = mysqlContainer.Terminate(ctx)
//	    os.Exit(code)
//	}
//
// Build Tags:
//
// Integration tests using this package should use the "integration" build
// tag:
//
//	//go:build integration
//
// Run them with:
//
//	go test -tags=integration ./...
package containers
