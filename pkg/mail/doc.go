// Package mail sends the flowctl run report by SMTP.
package mail
