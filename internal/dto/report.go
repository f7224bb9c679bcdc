package dto

// InstructorHoursReportQuery selects the month and output format of the instructor hours report.
type InstructorHoursReportQuery struct {
	Year   int    `form:"year" binding:"required,gte=2000,lte=2100"`
	Month  int    `form:"month" binding:"required,gte=1,lte=12"`
	Format string `form:"format" binding:"omitempty,oneof=json csv pdf"`
}
