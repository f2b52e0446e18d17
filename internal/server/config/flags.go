package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string         HTTP bind address (e.g., ":8080")
//	-grpc string      gRPC health bind address (e.g., ":50051")
//	-d string         PostgreSQL DSN
//	-s string         secret key
//	-t int            session validity, minutes
//	-r int            remember-me token validity, days
//	-blob string      blob backend: local | s3
//	-m string         local blob root directory
//	-u string         S3 root user
//	-p string         S3 root password
//	-b string         S3 bucket name
//	-g string         S3 region
//	-e string         S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-i string         identity dataset path
//	-max-upload int   upload body limit, bytes
//	-max-archive int  archive size limit, bytes
//	-log string       log format: json | text | console
//	-debug-otp        expose stub OTP codes
//	-secure-cookies   set Secure on auth cookies (use -secure-cookies=false to disable)
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so flags owned by other components are ignored.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-grpc", "-d", "-s", "-t", "-r", "-blob", "-m", "-u", "-p", "-b", "-g", "-e", "-i", "-max-upload", "-max-archive", "-log"},
		"-debug-otp", "-secure-cookies",
	)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "grpc", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session validity (in minutes)")
	rememberValidity := fs.Int("r", int(config.RememberTokenValidityDuration.Hours()/24), "remember-me token validity (in days)")

	fs.StringVar(&config.BlobBackend, "blob", config.BlobBackend, "blob backend (local|s3)")
	fs.StringVar(&config.BlobRoot, "m", config.BlobRoot, "local blob root directory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.IdentityDatasetPath, "i", config.IdentityDatasetPath, "identity dataset path")
	fs.Int64Var(&config.MaxUploadBytes, "max-upload", config.MaxUploadBytes, "upload body limit (bytes)")
	fs.Int64Var(&config.MaxArchiveBytes, "max-archive", config.MaxArchiveBytes, "archive size limit (bytes)")
	fs.StringVar(&config.LogFormat, "log", config.LogFormat, "log format (json|text|console)")
	fs.BoolVar(&config.DebugOTP, "debug-otp", config.DebugOTP, "expose stub OTP codes")
	fs.BoolVar(&config.SecureCookies, "secure-cookies", config.SecureCookies, "set Secure on auth cookies")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.RememberTokenValidityDuration = time.Duration(*rememberValidity) * 24 * time.Hour
}
